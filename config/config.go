package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"prizechain/crypto"
)

const (
	defaultRPCAddress  = ":8899"
	defaultDataDir     = "./prize-data"
	defaultNetworkName = "prize-local"
)

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	NetworkName string `toml:"NetworkName"`
	Environment string `toml:"Environment"`
	// GenesisFile optionally points at a YAML allocation list merged with
	// the inline Genesis entries.
	GenesisFile string           `toml:"GenesisFile"`
	Genesis     []GenesisAccount `toml:"Genesis"`

	// OperatorKeystorePath holds the node operator's encrypted key. The
	// operator is funded at genesis and may initialize the bounty program.
	OperatorKeystorePath string `toml:"OperatorKeystorePath"`
	OperatorGenesisFunds uint64 `toml:"OperatorGenesisFunds"`

	Ledger    Ledger    `toml:"ledger"`
	Bounty    Bounty    `toml:"bounty"`
	RPC       RPC       `toml:"rpc"`
	Log       Log       `toml:"log"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path, writing a default file
// and operator keystore when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown keys: %v", path, undecoded)
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = defaultNetworkName
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []GenesisAccount{}
	}
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a configuration populated with every default.
func Default() *Config {
	return &Config{
		RPCAddress:           defaultRPCAddress,
		DataDir:              defaultDataDir,
		NetworkName:          defaultNetworkName,
		Genesis:              []GenesisAccount{},
		OperatorGenesisFunds: 1_000_000_000_000,
		Ledger:               defaultLedger(),
		Bounty:               Bounty{InitializeOnStart: true},
		RPC:                  defaultRPC(),
		Log:                  defaultLog(),
		Telemetry:            Telemetry{ServiceName: "prized"},
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystorePath != keystorePath {
		cfg.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.OperatorKeystorePath = keystorePath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
