package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	grantPrefix      = "elv_"
	adjustmentPrefix = "adj_"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// NewGrant returns an elevation grant identifier. Grants created later sort later.
func NewGrant() string { return grantPrefix + New() }

// NewAdjustment returns a schedule adjustment identifier.
func NewAdjustment() string { return adjustmentPrefix + New() }

// NewRequest returns a random request identifier for log correlation.
func NewRequest() string { return uuid.NewString() }
