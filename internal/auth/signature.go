package auth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverAddress recovers the signer of an EIP-191 personal_sign message and
// returns it canonicalized lower-case. The signature is the 65-byte r||s||v
// hex string wallets produce, with v in either the 0/1 or 27/28 convention.
func RecoverAddress(message, signature string) (string, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return "", fmt.Errorf("%w: malformed signature", ErrNotAuthenticated)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: malformed signature", ErrNotAuthenticated)
	}
	// Wallets emit the legacy 27/28 recovery id; go-ethereum expects 0/1.
	v := sig[crypto.RecoveryIDOffset]
	if v == 27 || v == 28 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] = v - 27
	} else if v > 1 {
		return "", fmt.Errorf("%w: malformed signature", ErrNotAuthenticated)
	}

	pub, err := crypto.SigToPub(personalSignDigest(message), sig)
	if err != nil {
		return "", fmt.Errorf("%w: signature recovery failed", ErrNotAuthenticated)
	}
	return CanonicalAddress(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// personalSignDigest computes the EIP-191 digest: keccak256 of the message
// with the "\x19Ethereum Signed Message" envelope.
func personalSignDigest(message string) []byte {
	prefixed := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message)) + message
	return crypto.Keccak256([]byte(prefixed))
}

// CanonicalAddress lower-cases an address for storage and comparison. No
// checksum validation is performed beyond the basic hex shape.
func CanonicalAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ValidAddress reports whether the input has the shape of an EVM address.
func ValidAddress(address string) bool {
	return common.IsHexAddress(strings.TrimSpace(address))
}
