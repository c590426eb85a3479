package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/sentibridge/oracle/internal/domain"
)

// AdminClient calls the oracle contract's admin surface (pause/unpause,
// circuit breaker toggle, whitelist, operator grants). Per spec.md §4.9 this
// surface sits outside the hot path and is expected to be bound to a
// timelocked multi-sig in production; this client is the thin operator-CLI
// wrapper that calls the same write-path ABI the Submitter uses, never the
// automated per-cycle signer.
type AdminClient struct {
	client *Client
	signer Signer
}

// NewAdminClient constructs an AdminClient over an already-dialed chain
// Client and a Signer (local or remote, per signer_kind).
func NewAdminClient(client *Client, signer Signer) *AdminClient {
	return &AdminClient{client: client, signer: signer}
}

// Pause calls the contract's pause() admin function.
func (a *AdminClient) Pause(ctx context.Context) (string, error) {
	return a.call(ctx, "pause")
}

// Unpause calls the contract's unpause() admin function.
func (a *AdminClient) Unpause(ctx context.Context) (string, error) {
	return a.call(ctx, "unpause")
}

// SetCircuitBreakerEnabled toggles the on-chain circuit breaker.
func (a *AdminClient) SetCircuitBreakerEnabled(ctx context.Context, enabled bool) (string, error) {
	return a.call(ctx, "setCircuitBreakerEnabled", enabled)
}

// SetWhitelistEnabled toggles whether the asset whitelist is enforced.
func (a *AdminClient) SetWhitelistEnabled(ctx context.Context, enabled bool) (string, error) {
	return a.call(ctx, "setWhitelistEnabled", enabled)
}

// SetWhitelist adds or removes a single asset from the whitelist.
func (a *AdminClient) SetWhitelist(ctx context.Context, asset string, allowed bool) (string, error) {
	return a.call(ctx, "setWhitelist", common.HexToAddress(asset), allowed)
}

// GrantOperator grants operator capability (the capability the Submitter's
// signer address must hold to call updateSentiment/batchUpdateSentiment).
func (a *AdminClient) GrantOperator(ctx context.Context, operator string) (string, error) {
	return a.call(ctx, "grantOperator", common.HexToAddress(operator))
}

// RevokeOperator revokes operator capability from an address.
func (a *AdminClient) RevokeOperator(ctx context.Context, operator string) (string, error) {
	return a.call(ctx, "revokeOperator", common.HexToAddress(operator))
}

// GetLatest reads the current on-chain OracleEntry for an asset, for the
// operator CLI's read-only status command.
func (a *AdminClient) GetLatest(ctx context.Context, asset string) (domain.OracleEntry, error) {
	data, err := a.client.abi.Pack("getLatest", common.HexToAddress(asset))
	if err != nil {
		return domain.OracleEntry{}, fmt.Errorf("pack getLatest call: %w", err)
	}

	out, err := a.client.eth.CallContract(ctx, ethereum.CallMsg{To: &a.client.contractAddress, Data: data}, nil)
	if err != nil {
		return domain.OracleEntry{}, fmt.Errorf("%w: call getLatest: %v", domain.ErrRPCUnavailable, err)
	}

	var result struct {
		Score      *big.Int
		Timestamp  uint64
		SampleSize uint32
		Confidence uint16
	}
	if err := a.client.abi.UnpackIntoInterface(&result, "getLatest", out); err != nil {
		return domain.OracleEntry{}, fmt.Errorf("unpack getLatest result: %w", err)
	}

	return domain.OracleEntry{
		Score:      result.Score.Int64(),
		Timestamp:  result.Timestamp,
		SampleSize: result.SampleSize,
		Confidence: result.Confidence,
	}, nil
}

// call packs, signs and broadcasts a single admin transaction and returns
// its hash as soon as the RPC accepts it. It does not wait for the
// transaction to be mined or confirmed.
func (a *AdminClient) call(ctx context.Context, method string, args ...any) (string, error) {
	data, err := a.client.abi.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", method, err)
	}

	addr := common.HexToAddress(a.signer.Address())
	nonce, err := a.client.eth.PendingNonceAt(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("%w: fetch pending nonce: %v", domain.ErrRPCUnavailable, err)
	}

	gasPrice, err := a.client.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: suggest gas price: %v", domain.ErrRPCUnavailable, err)
	}

	tx := gethtypes.NewTransaction(nonce, a.client.contractAddress, big.NewInt(0), 200_000, gasPrice, data)
	signerScheme := gethtypes.NewEIP155Signer(a.client.chainID)
	digest := signerScheme.Hash(tx)

	sig, err := a.signer.Sign(ctx, digest)
	if err != nil {
		return "", fmt.Errorf("%w: sign admin tx: %v", domain.ErrSignerUnavailable, err)
	}

	signedTx, err := tx.WithSignature(signerScheme, encodeSignature(sig))
	if err != nil {
		return "", fmt.Errorf("apply signature: %w", err)
	}

	if err := a.client.eth.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("%w: send admin transaction: %v", domain.ErrRPCUnavailable, err)
	}

	return signedTx.Hash().Hex(), nil
}
