package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"prizechain/core"
	"prizechain/native/bounty"
	"prizechain/rpc"
	"prizechain/storage"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "1", want: 1_000_000_000},
		{in: "2.5", want: 2_500_000_000},
		{in: "0.000000001", want: 1},
		{in: ".75", want: 750_000_000},
		{in: "0", wantErr: true},
		{in: "1.", wantErr: true},
		{in: "1.0000000001", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "18446744074", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseAmount(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "3", formatAmount(3_000_000_000))
	require.Equal(t, "0.5", formatAmount(500_000_000))
	require.Equal(t, "1.000000001", formatAmount(1_000_000_001))
}

type cliHarness struct {
	t      *testing.T
	rpcURL string
	dir    string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	cfg := core.DefaultLedgerConfig()
	cfg.AirdropEnabled = true
	ledger, err := core.NewLedger(db, cfg, nil, bounty.NewEngine(bounty.DefaultProgramID))
	require.NoError(t, err)
	server := rpc.NewServer(ledger, bounty.DefaultProgramID, nil, rpc.Options{
		Auth:        rpc.AuthConfig{AllowAnonymous: true},
		WaitTimeout: 5 * time.Second,
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ledger.Run(ctx, 10*time.Millisecond)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &cliHarness{t: t, rpcURL: ts.URL, dir: t.TempDir()}
}

func (h *cliHarness) run(key string, args ...string) (string, error) {
	h.t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--rpc", h.rpcURL, "--key", filepath.Join(h.dir, key)}, args...))
	err := root.Execute()
	return out.String(), err
}

func (h *cliHarness) mustRun(key string, args ...string) string {
	h.t.Helper()
	out, err := h.run(key, args...)
	require.NoError(h.t, err, out)
	return out
}

func (h *cliHarness) address(key string) string {
	return strings.TrimSpace(h.mustRun(key, "address"))
}

func TestCLIBountyFlow(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("alice.json", "keygen")
	h.mustRun("bob.json", "keygen")
	_, err := h.run("alice.json", "keygen")
	require.ErrorContains(t, err, "already exists")

	alice, bob := h.address("alice.json"), h.address("bob.json")
	_, err = solana.PublicKeyFromBase58(alice)
	require.NoError(t, err)

	out := h.mustRun("alice.json", "airdrop", "10")
	require.Contains(t, out, "balance 10 PRIZE")

	h.mustRun("alice.json", "bounty", "init")
	out = h.mustRun("alice.json", "bounty", "create",
		"--reward", "2.5",
		"--url", "https://github.com/acme/anvil/issues/99",
		"--repo", "acme/anvil",
		"--issue", "99")
	require.Contains(t, out, "Created bounty 1")

	out = h.mustRun("alice.json", "bounty", "get", "1")
	var entry rpc.BountyResult
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	require.Equal(t, uint64(2_500_000_000), entry.RewardAmount)
	require.Equal(t, alice, entry.Creator)

	out = h.mustRun("alice.json", "bounty", "list", "--creator", alice)
	var entries []rpc.BountyResult
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)

	out = h.mustRun("bob.json", "airdrop", "1")
	require.Contains(t, out, "balance 1 PRIZE")
	_, err = h.run("bob.json", "bounty", "cancel", "1")
	require.ErrorContains(t, err, "UnauthorizedAccess")
	require.NotContains(t, err.Error(), "InsufficientFundsForFee")

	h.mustRun("alice.json", "bounty", "assign", "1", bob)
	_, err = h.run("alice.json", "bounty", "cancel", "1")
	require.ErrorContains(t, err, "InvalidBountyStatus")

	h.mustRun("alice.json", "bounty", "complete", "1", bob)
	out = h.mustRun("bob.json", "balance")
	require.Contains(t, out, "3.5 PRIZE")

	out = h.mustRun("alice.json", "bounty", "config")
	var cfg rpc.ConfigResult
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	require.Equal(t, uint64(2), cfg.NextBountyID)
}

func TestCLITransfer(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("alice.json", "keygen")
	h.mustRun("alice.json", "airdrop", "5")
	dest := solana.NewWallet().PublicKey().String()

	out := h.mustRun("alice.json", "transfer", dest, "1.5")
	require.Contains(t, out, "Signature:")
	out = h.mustRun("alice.json", "balance", dest)
	require.Contains(t, out, "1.5 PRIZE (1500000000 lamports)")

	_, err := h.run("alice.json", "transfer", dest, "0")
	require.ErrorContains(t, err, "positive")
}

func TestRootCommandLayout(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"keygen", "address", "balance", "airdrop", "transfer", "bounty"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, cmd.Name())
	}
	bountyCmd, _, err := root.Find([]string{"bounty"})
	require.NoError(t, err)
	require.Len(t, bountyCmd.Commands(), 8)
	require.NotNil(t, root.PersistentFlags().Lookup("rpc"))
}
