// Package xid generates prefixed opaque identifiers for records that need a
// unique string key outside the database sequence, such as member card
// barcodes and activity log ids. Ids are time-ordered by the nanosecond
// component with a random suffix to break ties.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
