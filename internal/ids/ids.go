// Package ids issues the identifiers notara hands out for rows that have no
// natural key: verifier elevation requests and per-request trace ids. ULIDs
// keep those sortable by creation time, which the admin pending queue and
// the audit log both rely on.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu  sync.Mutex
	src = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a fresh ULID string. Safe for concurrent use; ids issued by
// one process are strictly increasing.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), src).String()
}
