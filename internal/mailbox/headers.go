// internal/mailbox/headers.go
package mailbox

import (
	"net/textproto"
	"strings"
)

// Header is the single header shape the rest of the pipeline sees. All
// lookups are canonicalized here so downstream code never cares how the
// parsing library exposed them.
type Header map[string][]string

func NewHeader() Header {
	return make(Header)
}

func (h Header) Add(key, value string) {
	ck := textproto.CanonicalMIMEHeaderKey(key)
	h[ck] = append(h[ck], value)
}

// Get returns the first value for key, or "".
func (h Header) Get(key string) string {
	vals := h[textproto.CanonicalMIMEHeaderKey(key)]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (h Header) Values(key string) []string {
	return h[textproto.CanonicalMIMEHeaderKey(key)]
}

// NormalizeMessageID strips surrounding whitespace and one pair of angle
// brackets from a message identifier. Idempotent:
// " <abc123@host> " -> "abc123@host".
func NormalizeMessageID(mid string) string {
	s := strings.TrimSpace(mid)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	return strings.TrimSpace(s)
}

// SplitReferences breaks a References header into individual message ids,
// preserving order.
func SplitReferences(refs string) []string {
	fields := strings.Fields(refs)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if id := NormalizeMessageID(f); id != "" {
			out = append(out, id)
		}
	}
	return out
}
