package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type OwnerCred struct {
	ID     string `yaml:"id"`
	UserID int64  `yaml:"user_id"`
	Name   string `yaml:"name"`
	Token  string `yaml:"token"`
}

type Config struct {
	Port         string `yaml:"port"`
	DBDSN        string `yaml:"db_dsn"`
	BlobDir      string `yaml:"blob_dir"`
	LogFile      string `yaml:"log_file"`
	TransportURL string `yaml:"transport_url"`

	BroadcastWorkers     int           `yaml:"broadcast_workers"`
	BroadcastMaxAttempts int           `yaml:"broadcast_max_attempts"`
	BroadcastBackoff     time.Duration `yaml:"broadcast_backoff"`

	FulfillMaxAttempts int           `yaml:"fulfill_max_attempts"`
	FulfillBackoff     time.Duration `yaml:"fulfill_backoff"`

	EvidenceTTL   time.Duration `yaml:"evidence_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Exactly two owners; Load fails otherwise.
	Owners []OwnerCred `yaml:"owners"`
}

func defaults() Config {
	return Config{
		Port:                 "8080",
		DBDSN:                "keycrate.db",
		TransportURL:         "http://localhost:9090/send",
		BlobDir:              "./blobs",
		LogFile:              "./keycrate.log",
		BroadcastWorkers:     4,
		BroadcastMaxAttempts: 3,
		BroadcastBackoff:     2 * time.Second,
		FulfillMaxAttempts:   5,
		FulfillBackoff:       3 * time.Second,
		EvidenceTTL:          24 * time.Hour,
		SweepInterval:        10 * time.Minute,
	}
}

// Load reads env vars over built-in defaults, then applies a YAML file named
// by CONFIG_FILE on top of both. Owner credentials come from the YAML file or
// from OWNER1_*/OWNER2_* env vars.
func Load() (Config, error) {
	cfg := defaults()

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("BLOB_DIR"); v != "" {
		cfg.BlobDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("TRANSPORT_URL"); v != "" {
		cfg.TransportURL = v
	}
	if v := os.Getenv("BROADCAST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BroadcastWorkers = n
		}
	}

	for _, prefix := range []string{"OWNER1", "OWNER2"} {
		id := os.Getenv(prefix + "_ID")
		if id == "" {
			continue
		}
		uid, _ := strconv.ParseInt(os.Getenv(prefix+"_USER_ID"), 10, 64)
		cfg.Owners = append(cfg.Owners, OwnerCred{
			ID:     id,
			UserID: uid,
			Name:   os.Getenv(prefix + "_NAME"),
			Token:  os.Getenv(prefix + "_TOKEN"),
		})
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if len(cfg.Owners) != 2 {
		return Config{}, fmt.Errorf("exactly two owners required, got %d", len(cfg.Owners))
	}
	for _, o := range cfg.Owners {
		if o.ID == "" || o.Token == "" {
			return Config{}, fmt.Errorf("owner %q missing id or token", o.ID)
		}
	}
	if cfg.Owners[0].ID == cfg.Owners[1].ID {
		return Config{}, fmt.Errorf("owner ids must differ")
	}

	log.Printf("[config] PORT=%s DB_DSN=%s BLOB_DIR=%s workers=%d", cfg.Port, cfg.DBDSN, cfg.BlobDir, cfg.BroadcastWorkers)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
