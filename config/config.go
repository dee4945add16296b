package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		URL  string // table server websocket endpoint
		Port string // local control API
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Auth struct {
		Token     string // platform JWT; empty means guest
		Secret    string
		WalletKey string // hex key used by `sign`
	}
	Table struct {
		ID       string
		Name     string
		EntryFee float64
	}
	Log struct {
		Level string
	}
	Timing Timing
}

// Timing holds every tunable delay of the table client.
type Timing struct {
	AckTimeout        time.Duration
	HeartbeatInterval time.Duration
	ShowdownDebounce  time.Duration
	WinnerRevealDelay time.Duration
	DealCardDelay     time.Duration
	ControlsFallback  time.Duration
	DefaultCountdown  time.Duration
	SnapshotTTL       time.Duration
	ReconnectBackoff  time.Duration
}

var C Config

// DefaultTiming mirrors the values in config.yaml.
func DefaultTiming() Timing {
	return Timing{
		AckTimeout:        10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		ShowdownDebounce:  500 * time.Millisecond,
		WinnerRevealDelay: 2 * time.Second,
		DealCardDelay:     150 * time.Millisecond,
		ControlsFallback:  5 * time.Second,
		DefaultCountdown:  10 * time.Second,
		SnapshotTTL:       time.Hour,
		ReconnectBackoff:  2 * time.Second,
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultTiming()
	v.SetDefault("server.url", "ws://localhost:8080/ws")
	v.SetDefault("server.port", ":8090")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.walletkey", "")
	v.SetDefault("table.id", "")
	v.SetDefault("table.name", "")
	v.SetDefault("table.entryfee", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("timing.acktimeout", d.AckTimeout)
	v.SetDefault("timing.heartbeatinterval", d.HeartbeatInterval)
	v.SetDefault("timing.showdowndebounce", d.ShowdownDebounce)
	v.SetDefault("timing.winnerrevealdelay", d.WinnerRevealDelay)
	v.SetDefault("timing.dealcarddelay", d.DealCardDelay)
	v.SetDefault("timing.controlsfallback", d.ControlsFallback)
	v.SetDefault("timing.defaultcountdown", d.DefaultCountdown)
	v.SetDefault("timing.snapshotttl", d.SnapshotTTL)
	v.SetDefault("timing.reconnectbackoff", d.ReconnectBackoff)
}

// Read parses the config file at path. Environment variables prefixed with
// SEKA_ override file values (SEKA_TABLE_ID, SEKA_AUTH_TOKEN, ...).
func Read(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("SEKA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

func Load() {
	c, err := Read("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	C = c
}
