package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Relay configures the meshrelayd process.
type Relay struct {
	ListenAddr     string   `toml:"listen_addr" envconfig:"LISTEN_ADDR" validate:"required,hostname_port"`
	GRPCAddr       string   `toml:"grpc_addr" envconfig:"GRPC_ADDR" validate:"omitempty,hostname_port"`
	SendQueue      int      `toml:"send_queue" envconfig:"SEND_QUEUE" validate:"min=1,max=4096"`
	AllowedOrigins []string `toml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	LogLevel       string   `toml:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// DefaultRelay returns the relay configuration used when nothing overrides it.
func DefaultRelay() Relay {
	return Relay{
		ListenAddr: ":5000",
		SendQueue:  64,
		LogLevel:   "info",
	}
}

// LoadRelay builds the relay configuration from defaults, the optional TOML
// file at path, a local .env file and MESHRELAY_* environment variables, in
// increasing precedence, then validates it.
func LoadRelay(path string) (*Relay, error) {
	cfg := DefaultRelay()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("read relay config: %w", err)
		}
	}

	_ = godotenv.Load()
	if err := envconfig.Process("MESHRELAY", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid relay config: %w", err)
	}
	return &cfg, nil
}
