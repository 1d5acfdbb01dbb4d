// Package settings loads the service configuration from the environment and
// the optional bootstrap file listing sketches to create at startup.
package settings

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sahithikokkula/sketchd/pkg/sketches"
)

type Settings struct {
	// Server listen address config
	Port           int           `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"SKETCHD_REQUEST_TIMEOUT" default:"30s"`

	// Logging settings
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Storage settings
	DBPath           string `envconfig:"SKETCHD_DB_PATH" default:"sketchd.sqlite"`
	CompressionLevel int    `envconfig:"SKETCHD_COMPRESSION_LEVEL" default:"0"`

	// Sketch defaults, used when a create request leaves them out
	DefaultErrorBound float64 `envconfig:"SKETCHD_DEFAULT_ERROR_BOUND" default:"0.001"`
	DefaultConfidence float64 `envconfig:"SKETCHD_DEFAULT_CONFIDENCE" default:"0.99"`

	BootstrapFile string `envconfig:"SKETCHD_BOOTSTRAP_FILE" default:""`
}

// NewSettings reads the settings from the environment.
func NewSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return s, err
	}
	if err := s.validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s Settings) validate() error {
	if _, _, err := sketches.Dimensions(s.DefaultErrorBound, s.DefaultConfidence); err != nil {
		return fmt.Errorf("invalid sketch defaults: %w", err)
	}
	if s.CompressionLevel < 0 || s.CompressionLevel > 22 {
		return fmt.Errorf("compression level has to be between 0 and 22, got %d", s.CompressionLevel)
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout has to be positive, got %s", s.RequestTimeout)
	}
	return nil
}

// ConfigureLogger applies level and format to the standard logrus logger.
func (s Settings) ConfigureLogger() error {
	level, err := logger.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	switch strings.ToLower(s.LogFormat) {
	case "json":
		logger.SetFormatter(&logger.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logger.FieldMap{
				logger.FieldKeyTime: "@timestamp",
				logger.FieldKeyMsg:  "@message",
			},
		})
	case "text", "":
		logger.SetFormatter(&logger.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", s.LogFormat)
	}
	return nil
}

// SketchSpec describes a sketch declared in the bootstrap file.
type SketchSpec struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	ItemType   string   `yaml:"item_type"`
	Fields     []string `yaml:"fields"`
	TopN       int      `yaml:"topn"`
	ErrorBound float64  `yaml:"error_bound"`
	Confidence float64  `yaml:"confidence"`
}

// Bootstrap is the content of the bootstrap file.
type Bootstrap struct {
	Sketches []SketchSpec `yaml:"sketches"`
}

// LoadBootstrap reads the bootstrap file. An empty path yields no sketches.
// Missing error bounds and confidences are filled from the settings.
func (s Settings) LoadBootstrap() (*Bootstrap, error) {
	if s.BootstrapFile == "" {
		return &Bootstrap{}, nil
	}
	data, err := os.ReadFile(s.BootstrapFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read bootstrap file: %w", err)
	}
	b, err := ParseBootstrap(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.BootstrapFile, err)
	}
	for i := range b.Sketches {
		spec := &b.Sketches[i]
		if spec.ErrorBound == 0 {
			spec.ErrorBound = s.DefaultErrorBound
		}
		if spec.Confidence == 0 {
			spec.Confidence = s.DefaultConfidence
		}
	}
	return b, nil
}

// ParseBootstrap decodes and checks a bootstrap document.
func ParseBootstrap(data []byte) (*Bootstrap, error) {
	var b Bootstrap
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse bootstrap: %w", err)
	}

	seen := make(map[string]bool, len(b.Sketches))
	for i, spec := range b.Sketches {
		if spec.Name == "" {
			return nil, fmt.Errorf("sketch %d has no name", i)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("sketch %q is declared twice", spec.Name)
		}
		seen[spec.Name] = true

		kind, err := sketches.ParseSketchType(spec.Kind)
		if err != nil {
			return nil, fmt.Errorf("sketch %q: %w", spec.Name, err)
		}
		if kind == sketches.CmsTopNType && spec.TopN <= 0 {
			return nil, fmt.Errorf("sketch %q: topn has to be positive", spec.Name)
		}
		if spec.ItemType == "" {
			return nil, fmt.Errorf("sketch %q has no item_type", spec.Name)
		}
	}
	return &b, nil
}
