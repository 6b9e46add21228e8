package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/config"
)

// Exporter protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config is the "telemetry" section of the daemon configuration.
type Config struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Protocol string `koanf:"protocol"`

	// Insecure disables TLS. Only loopback collectors may be reached
	// without it.
	Insecure bool `koanf:"insecure"`
	// TLSSkipVerify accepts any collector certificate.
	TLSSkipVerify bool `koanf:"tls_skip_verify"`

	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`

	// SampleRate is the share of root traces kept, 0 to 1.
	SampleRate float64 `koanf:"sample_rate"`
	// MetricsInterval is the export period; 0 turns metrics off.
	MetricsInterval config.Duration `koanf:"metrics_interval"`
	// Logs exports log records through the otelzap bridge.
	Logs bool `koanf:"logs"`

	ShutdownTimeout config.Duration `koanf:"shutdown_timeout"`
}

// NewDefaultConfig returns the defaults: off, pointing at a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		Insecure:        true,
		ServiceName:     "devauditd",
		ServiceVersion:  "dev",
		SampleRate:      1,
		MetricsInterval: config.Duration(15 * time.Second),
		Logs:            true,
		ShutdownTimeout: config.Duration(5 * time.Second),
	}
}

// Validate checks the configuration. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Endpoint == "":
		return errors.New("endpoint is required when telemetry is enabled")
	case c.ServiceName == "":
		return errors.New("service_name is required when telemetry is enabled")
	case c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP:
		return fmt.Errorf("protocol must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol)
	case c.Insecure && c.TLSSkipVerify:
		return errors.New("insecure and tls_skip_verify are mutually exclusive")
	case c.Insecure && !isLoopback(c.Endpoint):
		return fmt.Errorf("insecure export to non-loopback endpoint %q is not allowed", c.Endpoint)
	case c.SampleRate < 0 || c.SampleRate > 1:
		return fmt.Errorf("sample_rate must be between 0 and 1, got %g", c.SampleRate)
	case c.MetricsInterval < 0:
		return errors.New("metrics_interval must not be negative")
	case c.ShutdownTimeout <= 0:
		return errors.New("shutdown_timeout must be positive")
	}
	return nil
}

func isLoopback(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripScheme removes http:// or https://; OTLP exporters want host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
