// Package dedup decides whether a candidate email carries the same content
// as the one sent last time.
//
// Recipient and date headers are rewritten on every send, so comparing raw
// bytes would report every forwarded email as new. Normalizers strip the
// volatile parts before comparison.
package dedup

import (
	"bufio"
	"bytes"
	"strings"
)

// DefaultSeparator marks the end of the quoted header block in forwarded
// newsletters.
const DefaultSeparator = "________________________________"

// Normalizer maps email text to the part that identifies its content.
type Normalizer interface {
	Normalize(text string) string
}

// Same reports whether a and b are equal once normalized by n.
func Same(n Normalizer, a, b string) bool {
	return n.Normalize(a) == n.Normalize(b)
}

// HeaderSeparator keeps the text after the first occurrence of Separator.
// Text without the separator is kept whole.
type HeaderSeparator struct {
	Separator string
}

// NewHeaderSeparator returns a normalizer using DefaultSeparator.
func NewHeaderSeparator() HeaderSeparator {
	return HeaderSeparator{Separator: DefaultSeparator}
}

// Normalize implements Normalizer.
func (h HeaderSeparator) Normalize(text string) string {
	sep := h.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	_, after, found := strings.Cut(text, sep)
	if !found {
		return text
	}
	return after
}

// Raw compares text unmodified.
type Raw struct{}

// Normalize implements Normalizer.
func (Raw) Normalize(text string) string {
	return text
}

// WithoutMessageID drops Message-ID header lines, including folded
// continuation lines.
type WithoutMessageID struct{}

// Normalize implements Normalizer.
func (WithoutMessageID) Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), len(text)+1)
	scanner.Split(scanLinesKeepEnding)

	inHeader := true
	skipping := false
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimRight(line, "\r\n")

		if inHeader {
			if trimmed == "" {
				inHeader = false
				skipping = false
			} else if skipping && (line[0] == ' ' || line[0] == '\t') {
				continue
			} else {
				skipping = isMessageIDLine(trimmed)
				if skipping {
					continue
				}
			}
		}
		b.WriteString(line)
	}
	return b.String()
}

func isMessageIDLine(line string) bool {
	name, _, found := strings.Cut(line, ":")
	return found && strings.EqualFold(strings.TrimSpace(name), "Message-ID")
}

// scanLinesKeepEnding is bufio.ScanLines without dropping the terminator,
// so normalized text keeps its original line endings.
func scanLinesKeepEnding(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// ByName returns the normalizer configured under name.
func ByName(name string) (Normalizer, bool) {
	switch strings.ToLower(name) {
	case "", "separator":
		return NewHeaderSeparator(), true
	case "raw":
		return Raw{}, true
	case "message-id", "without-message-id":
		return WithoutMessageID{}, true
	default:
		return nil, false
	}
}
