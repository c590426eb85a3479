package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sentibridge/oracle/internal/domain"
)

// ClientConfig describes how to reach the chain RPC and the oracle contract.
type ClientConfig struct {
	RPCURL          string
	ChainID         int64
	ContractAddress string
	DialTimeout     time.Duration
}

// DefaultClientConfig supplies a sane dial timeout.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{DialTimeout: 10 * time.Second}
}

// Client wraps ethclient.Client with the parsed oracle ABI and verifies the
// configured chain id against what the RPC endpoint reports at construction,
// the same defensive check the teacher's integration client performs before
// trusting a configured RPC URL.
type Client struct {
	eth             *ethclient.Client
	abi             abi.ABI
	contractAddress common.Address
	chainID         *big.Int
}

// Dial connects to the chain RPC, parses the oracle ABI, and verifies the
// reported chain id matches cfg.ChainID.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	eth, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrRPCUnavailable, cfg.RPCURL, err)
	}

	reportedChainID, err := eth.ChainID(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch chain id: %v", domain.ErrRPCUnavailable, err)
	}
	if reportedChainID.Int64() != cfg.ChainID {
		return nil, fmt.Errorf("chain id mismatch: configured %d, RPC reports %d", cfg.ChainID, reportedChainID.Int64())
	}

	parsedABI, err := ParseOracleABI()
	if err != nil {
		return nil, fmt.Errorf("parse oracle ABI: %w", err)
	}

	return &Client{
		eth:             eth,
		abi:             parsedABI,
		contractAddress: common.HexToAddress(cfg.ContractAddress),
		chainID:         reportedChainID,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the verified chain id.
func (c *Client) ChainID() *big.Int { return c.chainID }
