package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable the exporter reads.
const EnvPrefix = "KNOT_EXPORTER_"

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Socket is the path of the Knot control socket.
	Socket string `koanf:"socket" validate:"required,socket_path"`

	// Listen is the host:port the HTTP exporter binds to. The host may be empty.
	Listen string `koanf:"listen" validate:"required,listen_addr"`

	// MetricsPath is the HTTP path the exposition is served on.
	MetricsPath string `koanf:"metrics_path" validate:"required,startswith=/"`

	// Timeout bounds one complete control exchange.
	Timeout time.Duration `koanf:"timeout" validate:"required,gte=100ms,lte=5m"`

	// MaxConnections caps the number of scrapes served concurrently.
	MaxConnections int `koanf:"max_connections" validate:"required,gte=1,lte=1024"`

	// Zone optionally restricts the query to a single zone.
	Zone string `koanf:"zone" validate:"omitempty,fqdn"`
}

// DEFAULT_APP_CONFIG holds the defaults applied before environment overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:            "prod",
	LogLevel:       "info",
	Socket:         "/run/knot/knot.sock",
	Listen:         ":9433",
	MetricsPath:    "/metrics",
	Timeout:        10 * time.Second,
	MaxConnections: 16,
	Zone:           "",
}

// validSocketPath accepts absolute, already clean filesystem paths.
func validSocketPath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	return filepath.IsAbs(p) && filepath.Clean(p) == p
}

// validListenAddr accepts "host:port" and ":port". A non-empty host must be
// an IP address or a hostname.
func validListenAddr(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil || portNum == 0 {
		return false
	}
	if host == "" || net.ParseIP(host) != nil {
		return true
	}
	return !strings.ContainsAny(host, " /")
}

// envLoader loads KNOT_EXPORTER_* variables, lowercased and stripped of the
// prefix. Mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom socket_path and listen_addr tags.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("socket_path", validSocketPath); err != nil {
		return err
	}
	return v.RegisterValidation("listen_addr", validListenAddr)
}

// Load applies defaults, then environment overrides, and validates the result.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct validation, including the custom tags, on cfg.
func Validate(cfg *AppConfig) error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := registerValidation(validate); err != nil {
		return fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
