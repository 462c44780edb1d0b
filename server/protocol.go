package server

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Frame types carried in the TYPE:::payload convention. SYSTEM frames carry
// command results and notices, RESPONSE frames carry model answers.
const (
	FrameResponse = "RESPONSE"
	FrameSystem   = "SYSTEM"
	FrameError    = "ERROR"
)

// Messages in both directions are delimited by a fixed multi-line sentinel,
// so payloads may themselves contain newlines.
const sentinel = "\n\n__END_OF_MESSAGE__\n\n"

const frameSeparator = ":::"

// WriteFrame writes one TYPE:::payload message terminated by the sentinel.
func WriteFrame(w io.Writer, frameType, payload string) error {
	if _, err := fmt.Fprintf(w, "%s%s%s%s", frameType, frameSeparator, payload, sentinel); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads one sentinel-delimited message, trimmed of surrounding
// whitespace. io.EOF signals a clean disconnect.
func ReadMessage(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		b.WriteString(line)
		if msg, ok := stripSentinel(b.String()); ok {
			return strings.TrimSpace(msg), nil
		}
		if err != nil {
			if err == io.EOF && strings.TrimSpace(b.String()) == "" {
				return "", io.EOF
			}
			return "", fmt.Errorf("read message: %w", err)
		}
	}
}

// ParseFrame splits a TYPE:::payload message. Messages without a separator
// are treated as a bare payload.
func ParseFrame(msg string) (frameType, payload string) {
	if i := strings.Index(msg, frameSeparator); i >= 0 {
		return msg[:i], msg[i+len(frameSeparator):]
	}
	return "", msg
}

func stripSentinel(s string) (string, bool) {
	trimmed := strings.TrimRight(s, "\n")
	marker := strings.TrimSpace(sentinel)
	if strings.HasSuffix(trimmed, marker) {
		return strings.TrimSuffix(trimmed, marker), true
	}
	return "", false
}
