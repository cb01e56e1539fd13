package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type APIConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// WhatsApp gateway bridge
	GatewayBaseURL      string        `envconfig:"GATEWAY_BASE_URL" required:"true"`
	GatewayTimeout      time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"8s"`
	GatewayPollInterval time.Duration `envconfig:"GATEWAY_POLL_INTERVAL" default:"2s"`
	GatewayRPS          float64       `envconfig:"GATEWAY_RPS" default:"5"`
	GatewayBurst        int           `envconfig:"GATEWAY_BURST" default:"10"`

	// Dispatch throttle: fixed wait between consecutive sends. The network
	// side flags bursty senders, so keep this generous.
	SendDelay   time.Duration `envconfig:"SEND_DELAY" default:"15s"`
	SendTimeout time.Duration `envconfig:"SEND_TIMEOUT" default:"30s"`

	// Recipient addressing suffix required by the network.
	RecipientSuffix string `envconfig:"RECIPIENT_SUFFIX" default:"@c.us"`

	// Uploads
	UploadDir      string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`

	// CORS
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"http://localhost:3000"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
