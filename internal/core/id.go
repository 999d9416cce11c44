package core

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// NewID returns a random 96-bit identifier encoded as lowercase hex.
// IDs are assigned once at creation and never reused. Falls back to a
// timestamp string if the random source fails.
func NewID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return strconv.FormatInt(time.Now().UTC().UnixNano(), 16)
}
