// Package gateway serves edit and delete requests for study session files.
//
// A request is a JSON object:
//
//	{"session_number": 2, "operation": "edit", "new_subject_tag": "CS 162"}
//
// and every request gets exactly one reply of the form
//
//	{"status": "success"|"error", "message": "..."}
//
// Requests arrive over a WebSocket at /ws, where a client sends one request
// and waits for its reply before sending the next, or as the body of a POST
// to /rpc. Both transports feed a single Loop, which hands one request at a
// time to the Router. The Router loads the session file, applies the
// operation and saves the file only when something changed.
package gateway
