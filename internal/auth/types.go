package auth

import (
	"time"

	"notara.org/internal/ledger"
)

// User is the off-chain record for one wallet address. The nonce is the
// single-use login challenge; IsApproved is the fallback role signal used
// only when the ledger reports the base role.
type User struct {
	Address    string    `json:"address"`
	Nonce      string    `json:"-"`
	IsApproved bool      `json:"isApproved"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Identity is the resolved caller: canonical address plus the role derived
// at request time. Role is never persisted or trusted from the token.
type Identity struct {
	Address    string      `json:"address"`
	Role       ledger.Role `json:"role"`
	IsApproved bool        `json:"isApproved"`
}

// Session is a freshly minted credential plus the identity it was issued to.
type Session struct {
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	Identity  Identity  `json:"identity"`
}
