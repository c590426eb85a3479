package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sentibridge/oracle/internal/domain"
)

// Signature is the (r, s, v) triple produced by a Signer over a 32-byte
// transaction digest.
type Signature struct {
	R *big.Int
	S *big.Int
	V *big.Int
}

// Signer abstracts an ECDSA signature producer: a local in-memory key or a
// remote HSM-style signing service. Implementations MUST NOT expose key
// material and MUST serialize calls per signer address — the Submitter
// relies on that to keep exactly one in-flight signer call per address.
type Signer interface {
	Address() string
	Sign(ctx context.Context, digest [32]byte) (Signature, error)
}

// LocalSigner holds a private key in memory and signs locally, as the
// teacher's Publisher does via crypto.HexToECDSA + crypto.Sign.
type LocalSigner struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address string
}

// NewLocalSigner parses a hex-encoded private key (with or without the 0x
// prefix) and derives its address.
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", domain.ErrSignerUnavailable, err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	return &LocalSigner{key: key, address: addr.Hex()}, nil
}

// Address implements Signer.
func (s *LocalSigner) Address() string { return s.address }

// Sign implements Signer. Serialized by s.mu so only one signature is
// produced at a time for this address, matching the Submitter's
// one-in-flight-call-per-signer invariant.
func (s *LocalSigner) Sign(ctx context.Context, digest [32]byte) (Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: sign digest: %v", domain.ErrSignerUnavailable, err)
	}

	r := new(big.Int).SetBytes(sig[:32])
	sVal := new(big.Int).SetBytes(sig[32:64])
	v := new(big.Int).SetInt64(int64(sig[64]))
	return Signature{R: r, S: sVal, V: v}, nil
}

// RemoteSigner delegates signing to a key-management HSM reachable over
// HTTP, identified by a key id rather than holding key material itself.
type RemoteSigner struct {
	mu      sync.Mutex
	client  *http.Client
	baseURL string
	keyID   string
	address string
}

// NewRemoteSigner constructs a signer backed by a remote HSM-style service.
// address is the public address the HSM reports for keyID; it is supplied
// out of band (e.g. from operator config) since the remote service never
// returns key material for us to derive it from locally.
func NewRemoteSigner(baseURL, keyID, address string) *RemoteSigner {
	return &RemoteSigner{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		keyID:   keyID,
		address: address,
	}
}

// Address implements Signer.
func (s *RemoteSigner) Address() string { return s.address }

type remoteSignRequest struct {
	KeyID  string `json:"key_id"`
	Digest string `json:"digest"`
}

type remoteSignResponse struct {
	R string `json:"r"`
	S string `json:"s"`
	V int64  `json:"v"`
}

// Sign implements Signer, posting the digest to the HSM and parsing back
// the (r, s, v) triple. Never transmits or receives key material.
func (s *RemoteSigner) Sign(ctx context.Context, digest [32]byte) (Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqBody, err := json.Marshal(remoteSignRequest{
		KeyID:  s.keyID,
		Digest: hex.EncodeToString(digest[:]),
	})
	if err != nil {
		return Signature{}, fmt.Errorf("marshal sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sign", bytes.NewReader(reqBody))
	if err != nil {
		return Signature{}, fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: remote sign request: %v", domain.ErrSignerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Signature{}, fmt.Errorf("%w: remote signer status %d", domain.ErrSignerUnavailable, resp.StatusCode)
	}

	var out remoteSignResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Signature{}, fmt.Errorf("%w: decode sign response: %v", domain.ErrSignerUnavailable, err)
	}

	r, ok := new(big.Int).SetString(out.R, 16)
	if !ok {
		return Signature{}, fmt.Errorf("%w: malformed r from remote signer", domain.ErrSignerUnavailable)
	}
	sVal, ok := new(big.Int).SetString(out.S, 16)
	if !ok {
		return Signature{}, fmt.Errorf("%w: malformed s from remote signer", domain.ErrSignerUnavailable)
	}

	return Signature{R: r, S: sVal, V: big.NewInt(out.V)}, nil
}

// NewSigner constructs the configured Signer variant.
func NewSigner(kind, privateKeyHex, remoteURL, remoteKeyID, remoteAddress string) (Signer, error) {
	switch kind {
	case "local":
		return NewLocalSigner(privateKeyHex)
	case "remote":
		return NewRemoteSigner(remoteURL, remoteKeyID, remoteAddress), nil
	default:
		return nil, fmt.Errorf("%w: unknown signer kind %q", domain.ErrConfigInvalid, kind)
	}
}
