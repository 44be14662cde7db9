package kay

import (
	"os"
	stdrt "runtime"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config controls the runtime's scheduling and logging.
type Config struct {
	// Workers is the scheduler's goroutine pool size. Zero means NumCPU.
	Workers int `yaml:"workers"`
	// QueueDepth is the per-worker run queue capacity.
	QueueDepth int `yaml:"queueDepth"`
	// BatchSize is the number of messages an actor may process per
	// scheduling quantum before yielding the worker.
	BatchSize int `yaml:"batchSize"`
	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `yaml:"logLevel"`
}

// DefaultConfig returns the runtime defaults.
func DefaultConfig() Config {
	return Config{
		Workers:    stdrt.NumCPU(),
		QueueDepth: 256,
		BatchSize:  16,
		LogLevel:   "info",
	}
}

// LoadConfig reads a YAML config file, applying defaults for absent fields.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	if c.Workers < 1 {
		c.Workers = stdrt.NumCPU()
	}
	if c.QueueDepth < 1 {
		c.QueueDepth = 256
	}
	if c.BatchSize < 1 {
		c.BatchSize = 16
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

func newLogger(level string) *logrus.Entry {
	log := logrus.New()
	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}
	return log.WithField("component", "kay")
}
