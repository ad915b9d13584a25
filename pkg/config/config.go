// Package config provides a reusable loader for DocChain node configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/TorporOverload/DocChainValidator/internal/envutil"
	"github.com/TorporOverload/DocChainValidator/internal/errs"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a DocChain node. It mirrors the
// structure of the YAML files under cmd/docchaind/config.
type Config struct {
	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Ledger struct {
		Difficulty int    `mapstructure:"difficulty" json:"difficulty"`
		ChainPath  string `mapstructure:"chain_path" json:"chain_path"`
		PeersPath  string `mapstructure:"peers_path" json:"peers_path"`
	} `mapstructure:"ledger" json:"ledger"`

	HTTP struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"http" json:"http"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

func setDefaults() {
	viper.SetDefault("network.listen_addr", "0.0.0.0:7700")
	viper.SetDefault("ledger.difficulty", 3)
	viper.SetDefault("ledger.chain_path", "data/chain.json")
	viper.SetDefault("ledger.peers_path", "data/peers.json")
	viper.SetDefault("http.listen_addr", "127.0.0.1:7701")
	viper.SetDefault("logging.level", "info")
}

// Load reads the base configuration file and merges any environment
// specific overrides. The resulting configuration is stored in AppConfig
// and returned.
//
// env selects an additional file (e.g. "production" loads
// production.yaml) merged on top of default.yaml; an empty env loads only
// the default file.
func Load(env string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/docchaind/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errs.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, errs.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("DOCCHAIN")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, errs.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the DOCCHAIN_ENV environment
// variable to select the environment-specific overlay.
func LoadFromEnv() (*Config, error) {
	return Load(envutil.OrDefault("DOCCHAIN_ENV", ""))
}
