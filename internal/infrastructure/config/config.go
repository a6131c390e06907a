package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Service holds all settings for the splitlab service, loaded from
// environment variables.
type Service struct {
	DatabaseURL       string `envconfig:"SPLITLAB_DATABASE_URL" default:"file:./splitlab.db"`
	DatabaseAuthToken string `envconfig:"SPLITLAB_DATABASE_AUTH_TOKEN"`

	Port int `envconfig:"SPLITLAB_PORT" default:"8080"`

	// APITokens is the set of bearer tokens accepted on /api routes.
	// When empty, authentication is disabled (local development).
	APITokens []string `envconfig:"SPLITLAB_API_TOKENS"`

	// NATSURL enables the JetStream cache backend and event relay when
	// set; otherwise an in-process cache and relay are used.
	NATSURL string `envconfig:"SPLITLAB_NATS_URL"`

	ExperimentCacheTTL time.Duration `envconfig:"SPLITLAB_EXPERIMENT_CACHE_TTL" default:"1h"`
	AssignmentCacheTTL time.Duration `envconfig:"SPLITLAB_ASSIGNMENT_CACHE_TTL" default:"1m"`

	RelayBufferSize int `envconfig:"SPLITLAB_RELAY_BUFFER" default:"1024"`

	OTELEndpoint string `envconfig:"SPLITLAB_OTEL_ENDPOINT"`
	OTELInsecure bool   `envconfig:"SPLITLAB_OTEL_INSECURE" default:"true"`

	LogLevel string `envconfig:"SPLITLAB_LOG_LEVEL" default:"info"`
}

// Load reads service configuration from environment variables.
func Load() (*Service, error) {
	var cfg Service
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
