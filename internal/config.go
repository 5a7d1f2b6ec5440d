package internal

import (
	"cim/runtime"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Host      string `env:"CIM_HOST,default=localhost" validate:"required,hostname|ip"`
	Port      int    `env:"CIM_PORT,default=6667" validate:"min=1,max=65535"`
	Transport string `env:"CIM_TRANSPORT,default=tcp" validate:"oneof=tcp ws wss"`
	WSPath    string `env:"CIM_WS_PATH,default=/ws" validate:"startswith=/"`
	Username  string `env:"CIM_USERNAME" validate:"omitempty,max=32"`
	Password  string `env:"CIM_PASSWORD"`

	HeartbeatInterval          time.Duration `env:"HEARTBEAT_INTERVAL,default=15s" validate:"gt=0"`
	HeartbeatTimeoutMultiplier int           `env:"HEARTBEAT_TIMEOUT_MULTIPLIER,default=3" validate:"min=1"`
	ReconnectBaseDelay         time.Duration `env:"RECONNECT_BASE_DELAY,default=500ms" validate:"gt=0"`
	ReconnectMaxDelay          time.Duration `env:"RECONNECT_MAX_DELAY,default=30s" validate:"gtefield=ReconnectBaseDelay"`
	ReconnectMaxAttempts       int           `env:"RECONNECT_MAX_ATTEMPTS,default=0" validate:"min=0"`
	ReconnectJitter            float64       `env:"RECONNECT_JITTER,default=0.2" validate:"min=0,lt=1"`
	OutboundQueueMaxDepth      int           `env:"OUTBOUND_QUEUE_MAX_DEPTH,default=256" validate:"min=1"`
	ChannelHistoryRetention    int           `env:"CHANNEL_HISTORY_RETENTION,default=500" validate:"min=1"`
	HandshakeTimeout           time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s" validate:"gt=0"`
	WriteTimeout               time.Duration `env:"WRITE_TIMEOUT,default=5s" validate:"gt=0"`
	SinkTimeout                time.Duration `env:"SINK_TIMEOUT,default=2s" validate:"gt=0"`

	LogLevel          string `env:"LOG_LEVEL,default=INFO"`
	HistoryBadgerPath string `env:"HISTORY_BADGER_PATH"`
	HistoryBlugePath  string `env:"HISTORY_BLUGE_PATH"`
	LimitRecords      *int   `env:"HISTORY_LIMIT_RECORDS"`
	MutedWords        string `env:"MUTED_WORDS"`
	MaskCharacter     string `env:"MASK_CHARACTER,default=*"`
	DefaultChannel    string `env:"DEFAULT_CHANNEL"`
}

var validate = validator.New()

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := CharacterRune(c.MaskCharacter); err != nil {
		return err
	}
	return nil
}

// Address is the server address understood by transport.New.
func (c Config) Address() string {
	switch c.Transport {
	case "ws", "wss":
		return fmt.Sprintf("%s://%s:%d%s", c.Transport, c.Host, c.Port, c.WSPath)
	default:
		return fmt.Sprintf("%s:%d", c.Host, c.Port)
	}
}

func (c Config) Options() runtime.Options {
	return runtime.Options{
		Username:                   c.Username,
		Password:                   c.Password,
		HeartbeatInterval:          c.HeartbeatInterval,
		HeartbeatTimeoutMultiplier: c.HeartbeatTimeoutMultiplier,
		ReconnectBaseDelay:         c.ReconnectBaseDelay,
		ReconnectMaxDelay:          c.ReconnectMaxDelay,
		ReconnectMaxAttempts:       c.ReconnectMaxAttempts,
		ReconnectJitter:            c.ReconnectJitter,
		OutboundQueueMaxDepth:      c.OutboundQueueMaxDepth,
		ChannelHistoryRetention:    c.ChannelHistoryRetention,
		HandshakeTimeout:           c.HandshakeTimeout,
		WriteTimeout:               c.WriteTimeout,
		SinkTimeout:                c.SinkTimeout,
	}
}

// Muted splits MUTED_WORDS on commas, dropping blanks.
func (c Config) Muted() []string {
	var words []string
	for _, w := range strings.Split(c.MutedWords, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MASK_CHARACTER must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
