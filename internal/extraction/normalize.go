package extraction

import (
	"bytes"
	"mime"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/unicode/norm"
)

const octetStream = "application/octet-stream"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CanonicalMediaType lower-cases the declared type and strips parameters.
// Missing or generic types are sniffed from the content.
func CanonicalMediaType(declared string, data []byte) string {
	mt := strings.ToLower(strings.TrimSpace(declared))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	} else if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	if mt == "" || mt == octetStream {
		detected := mimetype.Detect(data).String()
		if i := strings.IndexByte(detected, ';'); i >= 0 {
			detected = detected[:i]
		}
		mt = strings.ToLower(strings.TrimSpace(detected))
	}
	return mt
}

// Preprocess prepares document bytes for the recognizer. It is a pure
// function of its inputs.
func Preprocess(data []byte, mediaType string) []byte {
	out := bytes.TrimPrefix(data, utf8BOM)
	if strings.HasPrefix(mediaType, "text/") {
		out = bytes.ReplaceAll(out, []byte("\r\n"), []byte("\n"))
		out = norm.NFC.Bytes(out)
	}
	return out
}

// NormalizeText canonicalises recognizer output: NFC composition, control
// characters removed, trailing whitespace trimmed per line.
func NormalizeText(s string) string {
	s = norm.NFC.String(strings.ReplaceAll(s, "\r\n", "\n"))

	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case unicode.IsControl(r), r == '\uFEFF':
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
