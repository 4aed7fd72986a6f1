package executor

import "bytes"

// TruncatedMarker is appended to output cut off by a LimitedBuffer.
const TruncatedMarker = "\n[output truncated]\n"

// LimitedBuffer keeps the first Limit bytes written to it and drops the rest.
// Write never fails, so a copier feeding it keeps draining its source.
type LimitedBuffer struct {
	Limit     int
	buf       bytes.Buffer
	truncated bool
}

// NewLimitedBuffer returns a buffer that keeps at most limit bytes.
func NewLimitedBuffer(limit int) *LimitedBuffer {
	return &LimitedBuffer{Limit: limit}
}

func (b *LimitedBuffer) Write(p []byte) (int, error) {
	if room := b.Limit - b.buf.Len(); room < len(p) {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

// WriteString appends s, ignoring the limit. Used for notes added by the
// runner itself.
func (b *LimitedBuffer) WriteString(s string) {
	b.buf.WriteString(s)
}

// Truncated reports whether anything was dropped.
func (b *LimitedBuffer) Truncated() bool {
	return b.truncated
}

func (b *LimitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + TruncatedMarker
	}
	return b.buf.String()
}
