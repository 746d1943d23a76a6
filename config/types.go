package config

// Ledger controls round production and the fee and rent schedule.
type Ledger struct {
	RoundIntervalMs      uint64 `toml:"RoundIntervalMs"`
	MaxTransactionAge    uint64 `toml:"MaxTransactionAge"`
	MaxTxsPerRound       int    `toml:"MaxTxsPerRound"`
	MaxPending           int    `toml:"MaxPending"`
	LamportsPerSignature uint64 `toml:"LamportsPerSignature"`
	LamportsPerByteYear  uint64 `toml:"LamportsPerByteYear"`
	ExemptionYears       uint64 `toml:"ExemptionYears"`
	// EnableAirdrop turns on the development faucet.
	EnableAirdrop        bool   `toml:"EnableAirdrop"`
	AirdropLimitLamports uint64 `toml:"AirdropLimitLamports"`
}

func defaultLedger() Ledger {
	return Ledger{
		RoundIntervalMs:      400,
		MaxTransactionAge:    150,
		MaxTxsPerRound:       512,
		MaxPending:           4096,
		LamportsPerSignature: 5000,
		LamportsPerByteYear:  3480,
		ExemptionYears:       2,
		EnableAirdrop:        true,
		AirdropLimitLamports: 10_000_000_000,
	}
}

type Bounty struct {
	// ProgramID overrides the default bounty program address.
	ProgramID string `toml:"ProgramID"`
	// InitializeOnStart makes the daemon initialize the program with the
	// operator key when no config record exists yet.
	InitializeOnStart bool `toml:"InitializeOnStart"`
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateBurst          int     `toml:"RateBurst"`
	MaxBodyBytes       int64   `toml:"MaxBodyBytes"`
	ReadHeaderTimeout  uint64  `toml:"ReadHeaderTimeout"`
	WaitTimeoutMs      uint64  `toml:"WaitTimeoutMs"`
	// AuthTokenEnv names the environment variable holding the static bearer
	// token for write methods.
	AuthTokenEnv string `toml:"AuthTokenEnv"`
	// JWTSecretEnv names the environment variable holding the HS256 secret
	// accepted for write methods.
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	JWTIssuer    string `toml:"JWTIssuer"`
	// AllowUnauthenticatedWrites disables auth on write methods. Local only.
	AllowUnauthenticatedWrites bool `toml:"AllowUnauthenticatedWrites"`
}

func defaultRPC() RPC {
	return RPC{
		RateLimitPerSecond:         20,
		RateBurst:                  40,
		MaxBodyBytes:               1 << 20,
		ReadHeaderTimeout:          5,
		WaitTimeoutMs:              10_000,
		AuthTokenEnv:               "PRIZE_RPC_TOKEN",
		JWTSecretEnv:               "PRIZE_RPC_JWT_SECRET",
		AllowUnauthenticatedWrites: true,
	}
}

type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

func defaultLog() Log {
	return Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28}
}

// Telemetry wires the OTLP exporters.
type Telemetry struct {
	Enabled     bool              `toml:"Enabled"`
	ServiceName string            `toml:"ServiceName"`
	Endpoint    string            `toml:"Endpoint"`
	Insecure    bool              `toml:"Insecure"`
	Headers     map[string]string `toml:"Headers"`
	Metrics     bool              `toml:"Metrics"`
	Traces      bool              `toml:"Traces"`
}
