package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/harun/sessiond/pkg/client"
	"github.com/harun/sessiond/pkg/mutation"
	"github.com/spf13/cobra"
)

type sendOptions struct {
	session   int64
	operation string
	file      string
	tag       string
	note      string
	clearTag  bool
	clearNote bool
	addr      string
	useHTTP   bool
	timeout   time.Duration
}

func init() {
	rootCmd.AddCommand(newSendCmd())
}

func newSendCmd() *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one edit or delete request to a running daemon",
		Long: `Send one edit or delete request to a running daemon and print the
response envelope as JSON.`,
		Example: `  sessiond send --session 2 --op edit --tag "CS 162"
  sessiond send --session 2 --op edit --clear-note
  sessiond send --session 3 --op delete --file other_log.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&opts.session, "session", 0, "session number to modify")
	flags.StringVar(&opts.operation, "op", "", "operation: edit or delete")
	flags.StringVar(&opts.file, "file", "", "session file (default is the daemon's default file)")
	flags.StringVar(&opts.tag, "tag", "", "new subject tag")
	flags.StringVar(&opts.note, "note", "", "new session note")
	flags.BoolVar(&opts.clearTag, "clear-tag", false, "set the subject tag to null")
	flags.BoolVar(&opts.clearNote, "clear-note", false, "set the session note to null")
	flags.StringVar(&opts.addr, "addr", "", "gateway address host:port (default from config)")
	flags.BoolVar(&opts.useHTTP, "http", false, "use POST /rpc instead of the WebSocket")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("op")
	cmd.MarkFlagsMutuallyExclusive("tag", "clear-tag")
	cmd.MarkFlagsMutuallyExclusive("note", "clear-note")

	return cmd
}

func runSend(cmd *cobra.Command, opts *sendOptions) error {
	addr := opts.addr
	if addr == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr = net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	}

	req := buildRequest(cmd, opts)

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var (
		resp client.Response
		err  error
	)
	if opts.useHTTP {
		resp, err = client.Post(ctx, addr, req)
	} else {
		var c *client.Client
		c, err = client.Dial(ctx, addr)
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err = c.Send(ctx, req)
	}
	if err != nil {
		return err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	return nil
}

// buildRequest only sets the fields whose flags were given
func buildRequest(cmd *cobra.Command, opts *sendOptions) client.Request {
	req := client.Request{
		SessionNumber: opts.session,
		Operation:     opts.operation,
		SessionFile:   opts.file,
	}

	flags := cmd.Flags()
	switch {
	case opts.clearTag:
		req.NewSubjectTag = mutation.Clear()
	case flags.Changed("tag"):
		req.NewSubjectTag = mutation.SetTo(opts.tag)
	}
	switch {
	case opts.clearNote:
		req.NewSessionNote = mutation.Clear()
	case flags.Changed("note"):
		req.NewSessionNote = mutation.SetTo(opts.note)
	}

	return req
}
