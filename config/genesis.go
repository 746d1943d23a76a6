package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"prizechain/core"
	"prizechain/core/types"
	"prizechain/crypto"
)

// GenesisAccount funds a wallet when the ledger is first created.
type GenesisAccount struct {
	Address  string `toml:"Address" yaml:"address"`
	Lamports uint64 `toml:"Lamports" yaml:"lamports"`
}

func (g GenesisAccount) validate() error {
	if _, err := crypto.DecodeAddress(g.Address); err != nil {
		return err
	}
	if g.Lamports == 0 {
		return fmt.Errorf("%s: zero lamports", g.Address)
	}
	return nil
}

type genesisFile struct {
	Accounts []GenesisAccount `yaml:"accounts"`
}

// LoadGenesisFile reads a YAML allocation list of the form
//
//	accounts:
//	  - address: <base58>
//	    lamports: 1000000000
func LoadGenesisFile(path string) ([]GenesisAccount, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file genesisFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	for i, acc := range file.Accounts {
		if err := acc.validate(); err != nil {
			return nil, fmt.Errorf("genesis %s entry %d: %w", path, i, err)
		}
	}
	return file.Accounts, nil
}

// GenesisAllocations merges the inline entries, the genesis file (resolved
// relative to baseDir) and the operator's funding. Repeated addresses add up.
func (c *Config) GenesisAllocations(baseDir string, operator *solana.PublicKey) (map[solana.PublicKey]uint64, error) {
	entries := append([]GenesisAccount{}, c.Genesis...)
	if path := strings.TrimSpace(c.GenesisFile); path != "" {
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		fromFile, err := LoadGenesisFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fromFile...)
	}
	alloc := make(map[solana.PublicKey]uint64, len(entries)+1)
	credit := func(addr solana.PublicKey, lamports uint64) error {
		if alloc[addr]+lamports < alloc[addr] {
			return fmt.Errorf("genesis: allocation for %s overflows", addr)
		}
		alloc[addr] += lamports
		return nil
	}
	for _, entry := range entries {
		addr, err := crypto.DecodeAddress(entry.Address)
		if err != nil {
			return nil, err
		}
		if err := credit(addr, entry.Lamports); err != nil {
			return nil, err
		}
	}
	if operator != nil && c.OperatorGenesisFunds > 0 {
		if err := credit(*operator, c.OperatorGenesisFunds); err != nil {
			return nil, err
		}
	}
	return alloc, nil
}

// LedgerConfig converts the [ledger] table for core.NewLedger.
func (c *Config) LedgerConfig() core.LedgerConfig {
	l := c.Ledger
	return core.LedgerConfig{
		MaxTransactionAge:    l.MaxTransactionAge,
		MaxTxsPerRound:       l.MaxTxsPerRound,
		MaxPending:           l.MaxPending,
		LamportsPerSignature: l.LamportsPerSignature,
		Rent:                 types.Rent{LamportsPerByteYear: l.LamportsPerByteYear, ExemptionYears: l.ExemptionYears},
		AirdropEnabled:       l.EnableAirdrop,
		AirdropLimit:         l.AirdropLimitLamports,
	}
}

// RoundInterval is the time between rounds.
func (c *Config) RoundInterval() time.Duration {
	return time.Duration(c.Ledger.RoundIntervalMs) * time.Millisecond
}

// BountyProgramID resolves the configured program id.
func (c *Config) BountyProgramID(fallback solana.PublicKey) (solana.PublicKey, error) {
	if strings.TrimSpace(c.Bounty.ProgramID) == "" {
		return fallback, nil
	}
	return crypto.DecodeAddress(c.Bounty.ProgramID)
}
