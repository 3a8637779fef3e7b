package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/workflowd/pkg/log"
	"github.com/cuemby/workflowd/pkg/manager"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serverConfig is the configuration of `workflowd serve`, read from an
// optional YAML file, WORKFLOWD_* environment variables and flags
type serverConfig struct {
	DataDir        string         `mapstructure:"dataDir"`
	Addr           string         `mapstructure:"addr"`
	BasePath       string         `mapstructure:"basePath"`
	ProcessLogDSN  string         `mapstructure:"processLogDSN"`
	StatusInterval time.Duration  `mapstructure:"statusInterval"`
	Log            logConfig      `mapstructure:"log"`
	Manager        manager.Config `mapstructure:"manager"`
}

type logConfig struct {
	Level      string `mapstructure:"level"`
	JSON       bool   `mapstructure:"json"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress"`
}

func (c logConfig) toLog() log.Config {
	cfg := log.Config{Level: log.Level(c.Level), JSONOutput: c.JSON}
	if c.File != "" {
		cfg.File = &log.FileConfig{
			Path:       c.File,
			MaxSizeMB:  c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAgeDays: c.MaxAgeDays,
			Compress:   c.Compress,
		}
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := manager.DefaultConfig()
	v.SetDefault("dataDir", "./workflowd-data")
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("basePath", "/v1")
	v.SetDefault("processLogDSN", "")
	v.SetDefault("statusInterval", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.compress", false)
	v.SetDefault("log.maxSizeMB", 100)
	v.SetDefault("log.maxBackups", 5)
	v.SetDefault("log.maxAgeDays", 28)
	v.SetDefault("manager.tickInterval", d.TickInterval)
	v.SetDefault("manager.pingParkedInterval", d.PingParkedInterval)
	v.SetDefault("manager.lockDuration", d.LockDuration)
	v.SetDefault("manager.lockRefreshDuration", d.LockRefreshDuration)
	v.SetDefault("manager.pingInterval", d.PingInterval)
	v.SetDefault("manager.zombieMissThreshold", d.ZombieMissThreshold)
	v.SetDefault("manager.queueBatchSize", d.QueueBatchSize)
	v.SetDefault("manager.adminContextId", d.AdminContextID)
	v.SetDefault("manager.inboxSize", d.InboxSize)
}

// loadServerConfig merges defaults, the config file, the environment and
// the flags of cmd, in increasing order of precedence
func loadServerConfig(cmd *cobra.Command) (serverConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WORKFLOWD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"dataDir":                    "data-dir",
		"addr":                       "addr",
		"processLogDSN":              "processlog-dsn",
		"log.level":                  "log-level",
		"log.json":                   "log-json",
		"log.file":                   "log-file",
		"manager.tickInterval":       "tick-interval",
		"manager.pingParkedInterval": "ping-parked-interval",
	}
	for key, flag := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return serverConfig{}, fmt.Errorf("failed to bind flag %s: %w", flag, err)
			}
		}
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return serverConfig{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg serverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
