// Package main is the sentiment oracle's operator CLI: a thin cobra command
// tree over the contract's admin surface (pause/unpause, circuit breaker,
// whitelist, operator grants) plus a read-only status command. Per spec.md
// §4.9 the admin surface sits outside the hot path and is expected to be
// bound to a timelocked multi-sig in production; this binary never touches
// the automated per-cycle signer, only whatever key/HSM the operator points
// it at for an individual admin transaction.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentibridge/oracle/internal/chain"
)

var (
	flagRPCURL          string
	flagChainID         int64
	flagContractAddress string
	flagSignerKind      string
	flagPrivateKey      string
	flagRemoteURL       string
	flagRemoteKeyID     string
	flagRemoteAddress   string
)

func main() {
	root := &cobra.Command{
		Use:   "oraclectl",
		Short: "Operator CLI for the sentiment oracle contract's admin surface",
	}

	root.PersistentFlags().StringVar(&flagRPCURL, "rpc-url", os.Getenv("CHAIN_RPC_URL"), "chain JSON-RPC endpoint")
	root.PersistentFlags().Int64Var(&flagChainID, "chain-id", 1, "chain id")
	root.PersistentFlags().StringVar(&flagContractAddress, "contract", os.Getenv("ORACLE_CONTRACT_ADDRESS"), "oracle contract address")
	root.PersistentFlags().StringVar(&flagSignerKind, "signer-kind", "local", "\"local\" or \"remote\"")
	root.PersistentFlags().StringVar(&flagPrivateKey, "private-key", os.Getenv("SIGNER_PRIVATE_KEY"), "hex private key, local signer only")
	root.PersistentFlags().StringVar(&flagRemoteURL, "remote-signer-url", "", "remote HSM base URL, remote signer only")
	root.PersistentFlags().StringVar(&flagRemoteKeyID, "remote-key-id", "", "remote HSM key id, remote signer only")
	root.PersistentFlags().StringVar(&flagRemoteAddress, "remote-address", "", "address the remote HSM reports for --remote-key-id")

	root.AddCommand(
		newPauseCmd(),
		newUnpauseCmd(),
		newCircuitBreakerCmd(),
		newWhitelistCmd(),
		newOperatorCmd(),
		newStatusCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newAdminClient(ctx context.Context) (*chain.AdminClient, func(), error) {
	client, err := chain.Dial(ctx, chain.ClientConfig{
		RPCURL:          flagRPCURL,
		ChainID:         flagChainID,
		ContractAddress: flagContractAddress,
		DialTimeout:     10 * time.Second,
	})
	if err != nil {
		return nil, func() {}, fmt.Errorf("dial chain: %w", err)
	}

	signer, err := chain.NewSigner(flagSignerKind, flagPrivateKey, flagRemoteURL, flagRemoteKeyID, flagRemoteAddress)
	if err != nil {
		client.Close()
		return nil, func() {}, fmt.Errorf("construct signer: %w", err)
	}

	return chain.NewAdminClient(client, signer), client.Close, nil
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the oracle contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, closeFn, err := newAdminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			hash, err := admin.Pause(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func newUnpauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpause",
		Short: "Unpause the oracle contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, closeFn, err := newAdminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			hash, err := admin.Unpause(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func newCircuitBreakerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circuit-breaker",
		Short: "Enable or disable the on-chain circuit breaker",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Enable the circuit breaker",
			RunE:  circuitBreakerRunE(true),
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Disable the circuit breaker",
			RunE:  circuitBreakerRunE(false),
		},
	)
	return cmd
}

func circuitBreakerRunE(enabled bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		admin, closeFn, err := newAdminClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()
		hash, err := admin.SetCircuitBreakerEnabled(cmd.Context(), enabled)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	}
}

func newWhitelistCmd() *cobra.Command {
	var enabled bool
	toggleCmd := &cobra.Command{
		Use:   "toggle",
		Short: "Enable or disable whitelist enforcement",
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, closeFn, err := newAdminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			hash, err := admin.SetWhitelistEnabled(cmd.Context(), enabled)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
	toggleCmd.Flags().BoolVar(&enabled, "enabled", true, "whether the whitelist is enforced")

	addCmd := &cobra.Command{
		Use:   "add [asset]",
		Short: "Add an asset to the whitelist",
		Args:  cobra.ExactArgs(1),
		RunE:  whitelistRunE(true),
	}
	removeCmd := &cobra.Command{
		Use:   "remove [asset]",
		Short: "Remove an asset from the whitelist",
		Args:  cobra.ExactArgs(1),
		RunE:  whitelistRunE(false),
	}

	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage the oracle contract's asset whitelist",
	}
	cmd.AddCommand(toggleCmd, addCmd, removeCmd)
	return cmd
}

func whitelistRunE(allowed bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		admin, closeFn, err := newAdminClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()
		hash, err := admin.SetWhitelist(cmd.Context(), args[0], allowed)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	}
}

func newOperatorCmd() *cobra.Command {
	grantCmd := &cobra.Command{
		Use:   "grant [address]",
		Short: "Grant operator capability to an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, closeFn, err := newAdminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			hash, err := admin.GrantOperator(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
	revokeCmd := &cobra.Command{
		Use:   "revoke [address]",
		Short: "Revoke operator capability from an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, closeFn, err := newAdminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			hash, err := admin.RevokeOperator(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Grant or revoke operator capability",
	}
	cmd.AddCommand(grantCmd, revokeCmd)
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [asset]",
		Short: "Read the latest on-chain sentiment entry for an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, closeFn, err := newAdminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			entry, err := admin.GetLatest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("score=%d timestamp=%d sample_size=%d confidence=%d\n",
				entry.Score, entry.Timestamp, entry.SampleSize, entry.Confidence)
			return nil
		},
	}
}
