// Package daily derives a deterministic word index from the calendar date.
//
// It is used to seed the very first epoch so that every server instance
// sharing DAILY_SALT starts on the same word for a given day.
package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WordIndex returns a deterministic index for a date using HMAC(salt, YYYY-MM-DD) % n.
func WordIndex(date time.Time, salt string, n int) int {
	if n <= 0 {
		return 0
	}
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date)))
	sum := h.Sum(nil)
	// first 8 bytes as uint64 for the modulus
	v := binary.BigEndian.Uint64(sum[:8])
	return int(v % uint64(n))
}

// Source is a list the index can be applied to.
type Source interface {
	Len() int
}

// Seed returns the index into src for date, or ok=false when no salt is set
// and the caller should pick at random instead.
func Seed(src Source, salt string, date time.Time) (idx int, ok bool) {
	if salt == "" || src.Len() == 0 {
		return 0, false
	}
	return WordIndex(date, salt, src.Len()), true
}
