// internal/daily/daily.go
//
// Daily puzzle selection. The day boundary is UTC everywhere so a post at
// 23:59 and one at 00:01 land on different puzzles regardless of server
// timezone. Selection is a pure function of (date, salt, pool size): any
// number of server instances agree on the day's puzzle with no shared state
// beyond the salt. The salt exists so communities running the same catalog
// don't all surface the same puzzle on the same day.

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

// PuzzleIndex maps a date to an index in [0, poolLen) via
// HMAC-SHA256(salt, DateKey) mod poolLen. Returns 0 for an empty pool.
func PuzzleIndex(date time.Time, salt string, poolLen int) int {
	if poolLen <= 0 {
		return 0
	}
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date)))
	sum := h.Sum(nil)
	n := binary.BigEndian.Uint64(sum[:8])
	return int(n % uint64(poolLen))
}
