package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"prizechain/client"
	"prizechain/cmd/internal/passphrase"
	"prizechain/crypto"
)

const (
	defaultRPCURL     = "http://127.0.0.1:8899"
	walletPassEnv     = "PRIZE_WALLET_PASSPHRASE"
	defaultRPCTimeout = 30 * time.Second
)

// app carries the global flags shared by every subcommand.
type app struct {
	rpcURL    string
	token     string
	keyPath   string
	programID string
	timeout   time.Duration

	pass *passphrase.Source
}

func newRootCmd() *cobra.Command {
	a := &app{pass: passphrase.NewSource(walletPassEnv, "Enter wallet passphrase")}
	root := &cobra.Command{
		Use:           "prize-cli",
		Short:         "Interact with a prize bounty ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.rpcURL, "rpc", envOr("PRIZE_RPC_URL", defaultRPCURL), "JSON-RPC endpoint of the node")
	flags.StringVar(&a.token, "token", os.Getenv("PRIZE_RPC_TOKEN"), "Bearer token for write methods")
	flags.StringVarP(&a.keyPath, "key", "k", envOr("PRIZE_KEY", "wallet.json"), "Wallet keypair or keystore file")
	flags.StringVar(&a.programID, "program", "", "Bounty program id (defaults to the built-in id)")
	flags.DurationVar(&a.timeout, "timeout", defaultRPCTimeout, "Timeout for each command")

	root.AddCommand(
		a.newKeygenCmd(),
		a.newAddressCmd(),
		a.newBalanceCmd(),
		a.newAirdropCmd(),
		a.newTransferCmd(),
		a.newBountyCmd(),
	)
	return root
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

func (a *app) client() *client.Client {
	return client.New(a.rpcURL, client.WithToken(a.token))
}

func (a *app) loadKey() (solana.PrivateKey, error) {
	raw, err := os.ReadFile(a.keyPath)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", a.keyPath, err)
	}
	if !crypto.IsKeystore(raw) {
		return crypto.LoadKeypair(a.keyPath)
	}
	secret, err := a.pass.Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(a.keyPath, secret)
}

func (a *app) wallet() (*client.Wallet, error) {
	key, err := a.loadKey()
	if err != nil {
		return nil, err
	}
	opts := []client.WalletOption{}
	if a.programID != "" {
		id, err := crypto.DecodeAddress(a.programID)
		if err != nil {
			return nil, fmt.Errorf("program id: %w", err)
		}
		opts = append(opts, client.WithProgramID(id))
	}
	return client.NewWallet(a.client(), key, opts...), nil
}

// resolveAddress accepts an address or, when empty, the loaded wallet.
func (a *app) resolveAddress(arg string) (solana.PublicKey, error) {
	if strings.TrimSpace(arg) != "" {
		return crypto.DecodeAddress(arg)
	}
	key, err := a.loadKey()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
