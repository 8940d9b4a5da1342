package auth

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestRecoverAddressRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet := CanonicalAddress(crypto.PubkeyToAddress(key.PublicKey).Hex())

	message := LoginMessage("428519")
	sig, err := crypto.Sign(personalSignDigest(message), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	recovered, err := RecoverAddress(message, hexutil.Encode(sig))
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if recovered != wallet {
		t.Fatalf("recovered %s, want %s", recovered, wallet)
	}
}

func TestRecoverAddressLegacyRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet := CanonicalAddress(crypto.PubkeyToAddress(key.PublicKey).Hex())

	message := LoginMessage("99")
	sig, err := crypto.Sign(personalSignDigest(message), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	// MetaMask emits v as 27/28.
	sig[crypto.RecoveryIDOffset] += 27

	recovered, err := RecoverAddress(message, hexutil.Encode(sig))
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if recovered != wallet {
		t.Fatalf("recovered %s, want %s", recovered, wallet)
	}
}

func TestRecoverAddressDifferentSigner(t *testing.T) {
	alice, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	bob, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	aliceAddr := CanonicalAddress(crypto.PubkeyToAddress(alice.PublicKey).Hex())

	message := LoginMessage("12345")
	sig, err := crypto.Sign(personalSignDigest(message), bob)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	recovered, err := RecoverAddress(message, hexutil.Encode(sig))
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if recovered == aliceAddr {
		t.Fatal("signature from a different key recovered the wrong address")
	}
}

func TestRecoverAddressMalformed(t *testing.T) {
	cases := []string{"", "0x", "0xdeadbeef", strings.Repeat("z", 132)}
	for _, sig := range cases {
		if _, err := RecoverAddress("Login nonce: 1", sig); err == nil {
			t.Fatalf("expected error for signature %q", sig)
		}
	}
}

func TestCanonicalAddress(t *testing.T) {
	got := CanonicalAddress("  0xAbC0000000000000000000000000000000000123 ")
	if got != "0xabc0000000000000000000000000000000000123" {
		t.Fatalf("unexpected canonical form: %s", got)
	}
	if !ValidAddress("0xabc0000000000000000000000000000000000123") {
		t.Fatal("expected valid address")
	}
	if ValidAddress("not-an-address") {
		t.Fatal("expected invalid address")
	}
}
