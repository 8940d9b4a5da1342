// Package evm implements the notary-contract ledger client over an Ethereum
// JSON-RPC endpoint.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"notara.org/internal/ledger"
	"notara.org/internal/obs"
)

// contractABI covers the subset of the notary contract the service consumes.
const contractABI = `[
  {"type":"function","name":"hasRole","stateMutability":"view","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"grantRole","stateMutability":"nonpayable","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
  {"type":"function","name":"uploadDocumentRoot","stateMutability":"nonpayable","inputs":[{"name":"rootHash","type":"bytes32"},{"name":"metaCid","type":"string"},{"name":"domain","type":"string"},{"name":"title","type":"string"},{"name":"description","type":"string"},{"name":"expiresAt","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"setVerificationStatus","stateMutability":"nonpayable","inputs":[{"name":"versionHash","type":"bytes32"},{"name":"verified","type":"bool"}],"outputs":[]},
  {"type":"function","name":"revokeRoot","stateMutability":"nonpayable","inputs":[{"name":"rootHash","type":"bytes32"},{"name":"reason","type":"string"}],"outputs":[]},
  {"type":"function","name":"getRoot","stateMutability":"view","inputs":[{"name":"rootHash","type":"bytes32"}],"outputs":[{"name":"uploader","type":"address"},{"name":"revoked","type":"bool"},{"name":"createdAt","type":"uint256"},{"name":"domain","type":"string"},{"name":"title","type":"string"},{"name":"description","type":"string"},{"name":"expiresAt","type":"uint256"},{"name":"versions","type":"bytes32[]"}]},
  {"type":"function","name":"getVersion","stateMutability":"view","inputs":[{"name":"versionHash","type":"bytes32"}],"outputs":[{"name":"hash","type":"bytes32"},{"name":"cid","type":"string"},{"name":"verified","type":"bool"},{"name":"verifier","type":"address"},{"name":"uploadedAt","type":"uint256"}]}
]`

// Role identifiers follow the OpenZeppelin AccessControl convention:
// keccak256 of the role name, with the admin role being the zero value
// overridden by an explicit constant on the contract.
var (
	adminRoleID    = crypto.Keccak256Hash([]byte("ADMIN_ROLE"))
	verifierRoleID = crypto.Keccak256Hash([]byte("VERIFIER_ROLE"))
)

const defaultConfirmTimeout = 90 * time.Second

// Config carries the connection parameters for Dial.
type Config struct {
	RPCURL          string
	ContractAddress string
	// OperatorKey is the hex-encoded private key used to sign grantRole and
	// revokeRoot transactions. Optional: without it the client is read-only.
	OperatorKey    string
	ConfirmTimeout time.Duration
}

// Client talks to the notary contract. Implements ledger.Client.
type Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	bound    *bind.BoundContract

	operator *ecdsa.PrivateKey
	chainID  *big.Int

	confirmTimeout time.Duration
}

var _ ledger.Client = (*Client)(nil)

// Dial connects to the RPC endpoint and binds the contract.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, errors.New("evm: rpc url is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("evm: invalid contract address %q", cfg.ContractAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("evm: parse abi: %w", err)
	}
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("evm: chain id: %w", err)
	}

	c := &Client{
		eth:            eth,
		abi:            parsed,
		contract:       common.HexToAddress(cfg.ContractAddress),
		chainID:        chainID,
		confirmTimeout: cfg.ConfirmTimeout,
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = defaultConfirmTimeout
	}
	c.bound = bind.NewBoundContract(c.contract, parsed, eth, eth, eth)

	if key := strings.TrimSpace(cfg.OperatorKey); key != "" {
		priv, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("evm: parse operator key: %w", err)
		}
		c.operator = priv
	}
	return c, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c != nil && c.eth != nil {
		c.eth.Close()
	}
}

// ChainID returns the connected chain identifier.
func (c *Client) ChainID() *big.Int { return c.chainID }

// OperatorAddress returns the signer address, or the zero address when the
// client is read-only.
func (c *Client) OperatorAddress() common.Address {
	if c.operator == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.operator.PublicKey)
}

func (c *Client) RoleOf(ctx context.Context, address string) (ledger.Role, error) {
	if !common.IsHexAddress(address) {
		return ledger.RoleUploader, nil
	}
	account := common.HexToAddress(address)

	isAdmin, err := c.hasRole(ctx, adminRoleID, account)
	if err != nil {
		return "", err
	}
	if isAdmin {
		return ledger.RoleAdmin, nil
	}
	isVerifier, err := c.hasRole(ctx, verifierRoleID, account)
	if err != nil {
		return "", err
	}
	if isVerifier {
		return ledger.RoleVerifier, nil
	}
	return ledger.RoleUploader, nil
}

func (c *Client) hasRole(ctx context.Context, role common.Hash, account common.Address) (bool, error) {
	var out []any
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "hasRole", [32]byte(role), account)
	obs.ObserveChainCall("hasRole", err)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	has, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: unexpected hasRole result", ledger.ErrUnavailable)
	}
	return has, nil
}

func (c *Client) GetRoot(ctx context.Context, rootHash string) (ledger.Root, error) {
	hash, err := parseHash(rootHash)
	if err != nil {
		return ledger.Root{}, err
	}
	var out []any
	err = c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getRoot", hash)
	obs.ObserveChainCall("getRoot", err)
	if err != nil {
		return ledger.Root{}, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	uploader := out[0].(common.Address)
	if uploader == (common.Address{}) {
		return ledger.Root{}, ledger.ErrNotFound
	}
	root := ledger.Root{
		RootHash:    rootHash,
		Uploader:    strings.ToLower(uploader.Hex()),
		Revoked:     out[1].(bool),
		CreatedAt:   time.Unix(out[2].(*big.Int).Int64(), 0).UTC(),
		Domain:      out[3].(string),
		Title:       out[4].(string),
		Description: out[5].(string),
	}
	if expires := out[6].(*big.Int); expires.Sign() > 0 {
		t := time.Unix(expires.Int64(), 0).UTC()
		root.ExpiresAt = &t
	}
	for _, raw := range out[7].([][32]byte) {
		root.Versions = append(root.Versions, "0x"+common.Bytes2Hex(raw[:]))
	}
	return root, nil
}

func (c *Client) GetVersion(ctx context.Context, versionHash string) (ledger.Version, error) {
	hash, err := parseHash(versionHash)
	if err != nil {
		return ledger.Version{}, err
	}
	var out []any
	err = c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getVersion", hash)
	obs.ObserveChainCall("getVersion", err)
	if err != nil {
		return ledger.Version{}, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	storedHash := out[0].([32]byte)
	if storedHash == ([32]byte{}) {
		return ledger.Version{}, ledger.ErrNotFound
	}
	verifier := out[3].(common.Address)
	v := ledger.Version{
		Hash:       versionHash,
		CID:        out[1].(string),
		Verified:   out[2].(bool),
		UploadedAt: time.Unix(out[4].(*big.Int).Int64(), 0).UTC(),
	}
	if verifier != (common.Address{}) {
		v.Verifier = strings.ToLower(verifier.Hex())
	}
	return v, nil
}

func (c *Client) GrantVerifier(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("evm: invalid address %q", address)
	}
	return c.transact(ctx, "grantRole", [32]byte(verifierRoleID), common.HexToAddress(address))
}

func (c *Client) UploadDocumentRoot(ctx context.Context, rootHash, metaCID, domain, title, description string, expiresAt *time.Time) (string, error) {
	hash, err := parseHash(rootHash)
	if err != nil {
		return "", err
	}
	expires := new(big.Int)
	if expiresAt != nil {
		expires.SetInt64(expiresAt.Unix())
	}
	return c.transact(ctx, "uploadDocumentRoot", hash, metaCID, domain, title, description, expires)
}

func (c *Client) SetVerificationStatus(ctx context.Context, versionHash string, verified bool) (string, error) {
	hash, err := parseHash(versionHash)
	if err != nil {
		return "", err
	}
	return c.transact(ctx, "setVerificationStatus", hash, verified)
}

func (c *Client) RevokeRoot(ctx context.Context, rootHash, reason string) (string, error) {
	hash, err := parseHash(rootHash)
	if err != nil {
		return "", err
	}
	return c.transact(ctx, "revokeRoot", hash, reason)
}

// transact signs, submits and awaits finality for one contract call. Mirror
// writes depend on the receipt, so the wait is not optional.
func (c *Client) transact(ctx context.Context, method string, args ...any) (string, error) {
	if c.operator == nil {
		return "", ledger.ErrNoSigner
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.operator, c.chainID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	opts.Context = ctx

	tx, err := c.bound.Transact(opts, method, args...)
	obs.ObserveChainCall(method, err)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ledger.ErrUnavailable, method, err)
	}

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: %s (tx %s)", ledger.ErrTxFailed, method, tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	obs.ObserveChainConfirmation(time.Since(start))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: confirmation timed out after %s", ledger.ErrUnavailable, c.confirmTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	return receipt, nil
}

// parseHash accepts a 0x-prefixed 32-byte hex hash.
func parseHash(raw string) ([32]byte, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") || len(raw) != 66 {
		return [32]byte{}, fmt.Errorf("evm: invalid hash %q", raw)
	}
	var h common.Hash
	if err := h.UnmarshalText([]byte(raw)); err != nil {
		return [32]byte{}, fmt.Errorf("evm: invalid hash %q", raw)
	}
	return [32]byte(h), nil
}

// Ping checks RPC liveness. Used by the smoke tool and readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	// A code check catches a wrong contract address early.
	code, err := c.eth.CodeAt(ctx, c.contract, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	if len(code) == 0 {
		return fmt.Errorf("evm: no contract code at %s", c.contract.Hex())
	}
	return nil
}
