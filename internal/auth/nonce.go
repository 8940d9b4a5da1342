package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// loginMessagePrefix is the literal text wallets sign. Changing it breaks
// every client, so it is deliberately a compile-time constant.
const loginMessagePrefix = "Login nonce: "

// nonceBits sizes the challenge. 128 bits of CSPRNG output makes the
// challenge unguessable within any login window.
const nonceBits = 128

// NewNonce returns a fresh random challenge encoded as a decimal integer
// string, which keeps the signed message free of hex ambiguity.
func NewNonce() (string, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), nonceBits)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("auth: generate nonce: %w", err)
	}
	return n.String(), nil
}

// LoginMessage builds the exact message a wallet must sign for the given
// stored nonce.
func LoginMessage(nonce string) string {
	return loginMessagePrefix + strings.TrimSpace(nonce)
}
