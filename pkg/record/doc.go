// Package record persists study session collections as JSON arrays on disk.
//
// Invariants:
// - A collection is loaded fresh from disk on every call; nothing is cached.
// - Save replaces the file atomically: readers see either the old or the new content.
// - Load-modify-save sequences for the same path are serialized by Update.
// - Untouched records are written back with their keys, key order and values unchanged.
// - Records without an integer session_number are kept but never match a lookup.
//
// Usage:
//
//	store := record.NewStore(logger)
//	err := store.Update("study_sessions.json", func(c *record.Collection) (bool, error) {
//		i := c.Index(1)
//		return i >= 0, nil
//	})
package record
