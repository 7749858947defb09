package adapter

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Transcoder converts legacy single-byte text to UTF-8. Legacy archives
// predate Unicode; comments and text files are stored in the Windows-1252
// codepage.
type Transcoder struct {
	enabled bool
	dec     *encoding.Decoder
}

// NewTranscoder creates a Transcoder. When enabled is false both methods
// pass input through unchanged.
func NewTranscoder(enabled bool) *Transcoder {
	return &Transcoder{
		enabled: enabled,
		dec:     charmap.Windows1252.NewDecoder(),
	}
}

// Comment transcodes a revision comment or user name.
func (t *Transcoder) Comment(s string) string {
	if !t.enabled || s == "" || utf8.ValidString(s) {
		return s
	}

	out, err := t.dec.String(s)
	if err != nil {
		return s
	}

	return out
}

// Content transcodes file content. Binary content (anything holding a NUL
// byte) and content that is already valid UTF-8 pass through untouched.
func (t *Transcoder) Content(b []byte) []byte {
	if !t.enabled || len(b) == 0 {
		return b
	}

	if bytes.IndexByte(b, 0) >= 0 || utf8.Valid(b) {
		return b
	}

	out, err := t.dec.Bytes(b)
	if err != nil {
		return b
	}

	return out
}
