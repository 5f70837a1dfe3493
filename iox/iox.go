// Package iox holds small I/O cleanup helpers.
package iox

import "io"

// DiscardClose closes c and drops the error. For defers where a close
// failure cannot be acted on:
//
//	defer iox.DiscardClose(conn)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a func that closes c, for t.Cleanup:
//
//	t.Cleanup(iox.CloseFunc(store))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}
