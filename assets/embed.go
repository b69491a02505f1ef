// Package assets embeds the default word lists shipped with the server.
package assets

import (
	"embed"
	"io"
)

//go:embed candidates.txt allowed.txt
var FS embed.FS

// Candidates opens the default solution list (`WORD definition` per line).
func Candidates() (io.ReadCloser, error) {
	return FS.Open("candidates.txt")
}

// Allowed opens the default guess list (one word per line).
func Allowed() (io.ReadCloser, error) {
	return FS.Open("allowed.txt")
}
