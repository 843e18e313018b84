package config

// Package config provides a reusable loader for ledger configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"dftledger/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the tunables for a ledger canister and its archive
// subsystem. It mirrors the structure of the YAML files Load reads from the
// config/ directory.
type Config struct {
	Ledger struct {
		Symbol       string `mapstructure:"symbol" json:"symbol"`
		Name         string `mapstructure:"name" json:"name"`
		Decimals     uint8  `mapstructure:"decimals" json:"decimals"`
		FeeMinimum   uint64 `mapstructure:"fee_minimum" json:"fee_minimum"`
		FeeRate      uint32 `mapstructure:"fee_rate" json:"fee_rate"`
		RateDecimals uint8  `mapstructure:"rate_decimals" json:"rate_decimals"`
	} `mapstructure:"ledger" json:"ledger"`

	ReplayWindow struct {
		TransactionWindowSecs uint64 `mapstructure:"transaction_window_secs" json:"transaction_window_secs"`
		PermittedDriftSecs    uint64 `mapstructure:"permitted_drift_secs" json:"permitted_drift_secs"`
		MaxInWindow           int    `mapstructure:"max_in_window" json:"max_in_window"`
		MaxPurgePerCall       int    `mapstructure:"max_purge_per_call" json:"max_purge_per_call"`
	} `mapstructure:"replay_window" json:"replay_window"`

	Archive struct {
		TriggerThreshold int    `mapstructure:"trigger_threshold" json:"trigger_threshold"`
		NumToArchive     int    `mapstructure:"num_to_archive" json:"num_to_archive"`
		MaxNodeBytes     int64  `mapstructure:"max_node_bytes" json:"max_node_bytes"`
		MaxMessageBytes  int    `mapstructure:"max_message_bytes" json:"max_message_bytes"`
		CyclesPerNode    uint64 `mapstructure:"cycles_per_node" json:"cycles_per_node"`
	} `mapstructure:"archive" json:"archive"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded. A missing
// config/default.yaml is not an error: the values from setDefaults apply.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the DFTL_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("DFTL_ENV", ""))
}

// setDefaults mirrors the defaults baked into the reference canister so a
// ledger started without any config file still behaves sensibly.
func setDefaults() {
	viper.SetDefault("ledger.decimals", 8)
	viper.SetDefault("ledger.fee_minimum", 0)
	viper.SetDefault("ledger.fee_rate", 0)
	viper.SetDefault("ledger.rate_decimals", 8)

	viper.SetDefault("replay_window.transaction_window_secs", 24*60*60)
	viper.SetDefault("replay_window.permitted_drift_secs", 2*60)
	viper.SetDefault("replay_window.max_in_window", 5000)
	viper.SetDefault("replay_window.max_purge_per_call", 100)

	viper.SetDefault("archive.trigger_threshold", 2000)
	viper.SetDefault("archive.num_to_archive", 1000)
	viper.SetDefault("archive.max_node_bytes", int64(3*1024*1024*1024))
	viper.SetDefault("archive.max_message_bytes", 2*1024*1024)
	viper.SetDefault("archive.cycles_per_node", uint64(2_000_000_000_000))

	viper.SetDefault("logging.level", "info")
}
