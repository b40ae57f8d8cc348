package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "transportd.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. TRANSPORTD_DB_HOST.
const EnvPrefix = "TRANSPORTD"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	File      string `json:"file" mapstructure:"file"`
	WriteBack bool   `json:"writeBack" mapstructure:"writeBack"`
}

// StorageConfig selects the template store
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SimConfig holds the simulation loop settings
type SimConfig struct {
	Tick             time.Duration
	PositionUpdateMs uint32
	ConcurrentMaps   int
	InstanceableMaps []uint32
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("sim.tickMs", 50)
	viper.SetDefault("sim.positionUpdateMs", 200)
	viper.SetDefault("sim.concurrentMaps", 0)
	viper.SetDefault("world.instanceableMaps", []int{})

	viper.SetDefault("storage.type", "gorm")
	viper.SetDefault("storage.memory.file", "./transports.json")
	viper.SetDefault("storage.memory.writeBack", false)

	viper.SetDefault("db.driver", "postgres")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "transports")
	viper.SetDefault("db.sqlitePath", "./transports.db")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "transportd")
	viper.SetDefault("influx.bucket", "transports")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "transportd")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("stream.enabled", false)
	viper.SetDefault("stream.url", "ws://localhost:5000/api/v1/transports/stream")
	viper.SetDefault("stream.secret", "")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.listen", ":9464")

	viper.SetDefault("monitor.interval", "10s")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			File:      viper.GetString("storage.memory.file"),
			WriteBack: viper.GetBool("storage.memory.writeBack"),
		},
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetSimConfig returns the simulation and world settings. Non-positive
// tick and position intervals fall back to their defaults.
func GetSimConfig() SimConfig {
	cfg := SimConfig{
		Tick:             time.Duration(viper.GetInt("sim.tickMs")) * time.Millisecond,
		PositionUpdateMs: uint32(max(viper.GetInt("sim.positionUpdateMs"), 0)),
		ConcurrentMaps:   viper.GetInt("sim.concurrentMaps"),
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 50 * time.Millisecond
	}
	if cfg.PositionUpdateMs == 0 {
		cfg.PositionUpdateMs = 200
	}
	for _, id := range viper.GetIntSlice("world.instanceableMaps") {
		if id >= 0 {
			cfg.InstanceableMaps = append(cfg.InstanceableMaps, uint32(id))
		}
	}
	return cfg
}
