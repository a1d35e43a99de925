// internal/store/store.go
//
// Narrow key-value persistence interface for all shared game state.
// The backing store only guarantees atomic single-key get/set — no
// multi-key transactions and no compare-and-swap. Every read-modify-write
// sequence in the engine goes through this interface so a stronger backend
// (CAS, single-writer queue) can be swapped in without touching callers.

package store

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the backing store could not serve the request.
var ErrUnavailable = errors.New("store unavailable")

// KV is the persistence interface for serialized game records.
// Implementations may be backed by memory (this package), Redis, or SQLite.
type KV interface {
	// Get retrieves the value for key. The boolean reports presence;
	// a missing key is not an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set persists value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value string) error
}
