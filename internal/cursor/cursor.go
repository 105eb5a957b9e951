// Package cursor encodes keyset pagination positions for newest-first lists.
package cursor

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// DefaultLimit is the page size used when a query does not specify one.
const DefaultLimit = 50

// MaxLimit caps the page size a caller can request.
const MaxLimit = 500

// Encode encodes a timestamp and id into an opaque cursor string.
func Encode(ts time.Time, id string) string {
	raw := ts.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode decodes an opaque cursor string into a timestamp and id.
func Decode(c string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decoding cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parsing cursor timestamp: %w", err)
	}
	return ts, parts[1], nil
}

// Limit normalizes a requested page size.
func Limit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// Before reports whether the row (ts, id) sorts strictly after the cursor
// position in newest-first order, i.e. belongs on a following page.
func Before(ts time.Time, id string, curTS time.Time, curID string) bool {
	if ts.Equal(curTS) {
		return id < curID
	}
	return ts.Before(curTS)
}
