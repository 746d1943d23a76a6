package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must be set")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	l := c.Ledger
	if l.RoundIntervalMs == 0 {
		return fmt.Errorf("ledger: RoundIntervalMs must be positive")
	}
	if l.MaxTransactionAge == 0 {
		return fmt.Errorf("ledger: MaxTransactionAge must be positive")
	}
	if l.MaxTxsPerRound <= 0 {
		return fmt.Errorf("ledger: MaxTxsPerRound must be positive")
	}
	if l.MaxPending < l.MaxTxsPerRound {
		return fmt.Errorf("ledger: MaxPending %d below MaxTxsPerRound %d", l.MaxPending, l.MaxTxsPerRound)
	}
	if l.LamportsPerByteYear == 0 || l.ExemptionYears == 0 {
		return fmt.Errorf("ledger: rent schedule must be positive")
	}
	if l.EnableAirdrop && l.AirdropLimitLamports == 0 {
		return fmt.Errorf("ledger: AirdropLimitLamports must be positive when airdrops are enabled")
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.MaxBodyBytes <= 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must be positive")
	}
	if level := strings.ToLower(strings.TrimSpace(c.Log.Level)); level != "" {
		if _, ok := validLogLevels[level]; !ok {
			return fmt.Errorf("log: unknown level %q", c.Log.Level)
		}
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry: ServiceName required when enabled")
	}
	for i, acc := range c.Genesis {
		if err := acc.validate(); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
	}
	return nil
}
