// Package config loads the server's runtime options via struct-tag env
// binding. Grounded on github.com/caarlos0/env/v11 (adred-codev/ws_poc's
// go-server-2 dependency set) layered over github.com/joho/godotenv for
// optional .env loading, replacing the teacher's flag + raw os.Getenv
// pair. This is loading mechanics, not a CLI — no subcommands exist.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every recognized runtime option.
type Config struct {
	// Ingestion / core behavior
	Collect        bool          `env:"COLLECT" envDefault:"true"`
	Storage        []string      `env:"STORAGE" envSeparator:","`
	BackupInterval time.Duration `env:"BACKUP_INTERVAL" envDefault:"60s"`

	Broadcast         bool          `env:"BROADCAST" envDefault:"true"`
	BroadcastAggr     bool          `env:"BROADCAST_AGGR" envDefault:"false"`
	BroadcastDebounce time.Duration `env:"BROADCAST_DEBOUNCE" envDefault:"2s"`
	SendBufferSize    int           `env:"SEND_BUFFER" envDefault:"4096"`

	// HTTP/WebSocket surface
	Port                int           `env:"PORT" envDefault:"8080"`
	Host                string        `env:"HOST" envDefault:"0.0.0.0"`
	API                 bool          `env:"API" envDefault:"true"`
	EnableRateLimit     bool          `env:"ENABLE_RATE_LIMIT" envDefault:"true"`
	RateLimitTimeWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitMax        int           `env:"RATE_LIMIT_MAX" envDefault:"60"`
	Origin              string        `env:"ORIGIN" envDefault:".*"`
	MetricsEnabled      bool          `env:"METRICS_ENABLED" envDefault:"true"`

	// Historical query
	MaxFetchLength int64 `env:"MAX_FETCH_LENGTH" envDefault:"10000"`

	// Activity monitor
	MonitorInterval       time.Duration `env:"MONITOR_INTERVAL" envDefault:"15s"`
	ReconnectionThreshold int64         `env:"RECONNECTION_THRESHOLD" envDefault:"60000"`

	// Feeds
	Pairs []string `env:"PAIRS" envSeparator:","`

	// Storage driver connection strings
	MongoURI     string   `env:"MONGO_URI" envDefault:"mongodb://localhost:27017/aggr"`
	BoltPath     string   `env:"BOLT_PATH" envDefault:"./data/aggr.bolt"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"aggr-trades"`
	ArchiveDir   string   `env:"ARCHIVE_DIR" envDefault:""`
	ArchiveMaxGB int      `env:"ARCHIVE_MAX_GB" envDefault:"10"`

	// Adapter transport
	NATSUrl string `env:"NATS_URL" envDefault:""`

	// Ban list
	BanFilePath string `env:"BAN_FILE_PATH" envDefault:"./banned.txt"`
}

// Load reads an optional .env file (if present) then binds environment
// variables onto a Config via struct tags.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional; ignore "file not found"

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
