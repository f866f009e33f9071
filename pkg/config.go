package protocol

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config carries the tunables shared by both roles.
type Config struct {
	WindowSize            int           `yaml:"window_size"`
	ReceiveBufferSize     int           `yaml:"receive_buffer_size"`
	RetransmitTimeout     time.Duration `yaml:"retransmit_timeout"`
	HandshakeTimeout      time.Duration `yaml:"handshake_timeout"`
	DuplicateAckThreshold int           `yaml:"duplicate_ack_threshold"`
	PollInterval          time.Duration `yaml:"poll_interval"`
	LogLevel              string        `yaml:"log_level"`
	TracePath             string        `yaml:"trace"`
	Progress              bool          `yaml:"progress"`
}

func DefaultConfig() Config {
	return Config{
		WindowSize:            MaxWindowSize,
		ReceiveBufferSize:     MaxWindowSize,
		RetransmitTimeout:     time.Second,
		HandshakeTimeout:      time.Second,
		DuplicateAckThreshold: 3,
		PollInterval:          time.Millisecond,
		LogLevel:              "info",
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. Keys absent from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	switch {
	case cfg.WindowSize <= 0:
		return errors.Errorf("window_size must be positive, got %d", cfg.WindowSize)
	case cfg.ReceiveBufferSize <= 0:
		return errors.Errorf("receive_buffer_size must be positive, got %d", cfg.ReceiveBufferSize)
	case cfg.RetransmitTimeout <= 0:
		return errors.Errorf("retransmit_timeout must be positive, got %s", cfg.RetransmitTimeout)
	case cfg.HandshakeTimeout <= 0:
		return errors.Errorf("handshake_timeout must be positive, got %s", cfg.HandshakeTimeout)
	case cfg.DuplicateAckThreshold <= 0:
		return errors.Errorf("duplicate_ack_threshold must be positive, got %d", cfg.DuplicateAckThreshold)
	case cfg.PollInterval <= 0:
		return errors.Errorf("poll_interval must be positive, got %s", cfg.PollInterval)
	}
	return nil
}
