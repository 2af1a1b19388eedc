// Package simplectf is a curl-friendly capture-the-flag scoreboard.
package simplectf

// Version is set at link time with
// -ldflags "-X github.com/i3visio/simplectf.Version=...".
var Version = "devel"

const (
	License    = "AGPLv3"
	SourceCode = "https://github.com/i3visio/simplectf"
)
