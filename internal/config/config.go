// Package config loads the runtime's YAML configuration and reloads it when
// the file changes.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/lsm/fnsdk/internal/kafka"
)

// Trigger kinds.
const (
	TriggerKafka = "kafka"
	TriggerHTTP  = "http"
)

// Control channel types.
const (
	ControlNoop  = "noop"
	ControlLocal = "local"
	ControlKafka = "kafka"
	ControlHTTP  = "http"
)

// Runtime is the complete runtime configuration.
type Runtime struct {
	Name        string         `yaml:"name"`
	LogLevel    string         `yaml:"logLevel,omitempty"`
	MetricsAddr string         `yaml:"metricsAddr,omitempty"`
	Codec       CodecConfig    `yaml:"codec"`
	Trigger     TriggerConfig  `yaml:"trigger"`
	Control     ControlConfig  `yaml:"control,omitempty"`
	DeadLetter  DeadLetter     `yaml:"deadLetter,omitempty"`
	Platform    PlatformConfig `yaml:"platform,omitempty"`
}

// CodecConfig selects the wire codec for the session.
type CodecConfig struct {
	Format       string `yaml:"format"`
	Keys         string `yaml:"keys,omitempty"`
	Batch        bool   `yaml:"batch,omitempty"`
	BodyEncoding string `yaml:"bodyEncoding,omitempty"`
}

type TriggerConfig struct {
	Kind        string      `yaml:"kind"`
	Name        string      `yaml:"name,omitempty"`
	ExplicitAck bool        `yaml:"explicitAck,omitempty"`
	Workers     int         `yaml:"workers,omitempty"`
	Kafka       *KafkaInput `yaml:"kafka,omitempty"`
	HTTP        *HTTPInput  `yaml:"http,omitempty"`
}

type KafkaInput struct {
	Cluster       kafka.ClusterConfig `yaml:"cluster"`
	Topic         string              `yaml:"topic"`
	ConsumerGroup string              `yaml:"consumerGroup"`
	StartOffset   string              `yaml:"startOffset,omitempty"`
}

type HTTPInput struct {
	ListenAddr string `yaml:"listenAddr"`
	Path       string `yaml:"path,omitempty"`
}

// ControlConfig says where explicit acknowledgements go.
type ControlConfig struct {
	Type  string `yaml:"type"`
	Topic string `yaml:"topic,omitempty"`
	URL   string `yaml:"url,omitempty"`
}

// DeadLetter names the topic for undecodable envelopes. Empty disables it.
type DeadLetter struct {
	Topic string `yaml:"topic,omitempty"`
}

type PlatformConfig struct {
	Kind      string `yaml:"kind,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

// ApplyDefaults fills the optional settings.
func (r *Runtime) ApplyDefaults() {
	if r.MetricsAddr == "" {
		r.MetricsAddr = ":9090"
	}
	if r.Codec.Format == "" {
		r.Codec.Format = "msgpack"
	}
	if r.Codec.Keys == "" {
		r.Codec.Keys = "typed"
	}
	if r.Codec.BodyEncoding == "" {
		r.Codec.BodyEncoding = "raw"
	}
	if r.Trigger.Workers <= 0 {
		r.Trigger.Workers = 1
	}
	if r.Trigger.Name == "" {
		r.Trigger.Name = r.Name
	}
	if r.Control.Type == "" {
		r.Control.Type = ControlNoop
		if r.Trigger.ExplicitAck && r.Trigger.Kind == TriggerKafka {
			r.Control.Type = ControlLocal
		}
	}
	if r.Platform.Kind == "" {
		r.Platform.Kind = "local"
	}
	if r.Trigger.HTTP != nil && r.Trigger.HTTP.Path == "" {
		r.Trigger.HTTP.Path = "/"
	}
	if r.Trigger.Kafka != nil && r.Trigger.Kafka.StartOffset == "" {
		r.Trigger.Kafka.StartOffset = "latest"
	}
}

// Validate reports every problem at once.
func (r *Runtime) Validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	switch r.Trigger.Kind {
	case TriggerKafka:
		if k := r.Trigger.Kafka; k == nil {
			errs = append(errs, errors.New("trigger.kafka is required for kafka triggers"))
		} else {
			if err := k.Cluster.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("trigger.kafka.cluster: %w", err))
			}
			if k.Topic == "" {
				errs = append(errs, errors.New("trigger.kafka.topic is required"))
			}
			if k.ConsumerGroup == "" {
				errs = append(errs, errors.New("trigger.kafka.consumerGroup is required"))
			}
			if k.StartOffset != "earliest" && k.StartOffset != "latest" {
				errs = append(errs, fmt.Errorf("trigger.kafka.startOffset %q must be earliest or latest", k.StartOffset))
			}
		}
	case TriggerHTTP:
		if r.Trigger.HTTP == nil || r.Trigger.HTTP.ListenAddr == "" {
			errs = append(errs, errors.New("trigger.http.listenAddr is required for http triggers"))
		}
	default:
		errs = append(errs, fmt.Errorf("trigger.kind %q must be kafka or http", r.Trigger.Kind))
	}

	switch r.Control.Type {
	case ControlNoop:
	case ControlLocal:
		if r.Trigger.Kind != TriggerKafka {
			errs = append(errs, errors.New("control.type local requires a kafka trigger"))
		}
	case ControlKafka:
		if r.Control.Topic == "" {
			errs = append(errs, errors.New("control.topic is required for kafka control"))
		}
		if r.Trigger.Kafka == nil {
			errs = append(errs, errors.New("kafka control requires a kafka trigger cluster"))
		}
	case ControlHTTP:
		if r.Control.URL == "" {
			errs = append(errs, errors.New("control.url is required for http control"))
		}
	default:
		errs = append(errs, fmt.Errorf("control.type %q is not supported", r.Control.Type))
	}

	if r.DeadLetter.Topic != "" && r.Trigger.Kafka == nil {
		errs = append(errs, errors.New("deadLetter.topic requires a kafka trigger cluster"))
	}
	return errors.Join(errs...)
}

// Loader loads and watches a runtime config file.
type Loader struct {
	mu       sync.RWMutex
	current  *Runtime
	path     string
	logger   *slog.Logger
	onChange func(*Runtime)
}

// NewLoader creates a loader for the file at path.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{path: path, logger: logger}
}

// OnChange registers a callback that fires after a successful reload.
func (l *Loader) OnChange(fn func(*Runtime)) {
	l.onChange = fn
}

// Load reads, defaults and validates the file. A failed load keeps the
// previous configuration.
func (l *Loader) Load() (*Runtime, error) {
	cfg, err := loadFile(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Current returns the last successfully loaded configuration, or nil.
func (l *Loader) Current() *Runtime {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Watch reloads the file on change until done is closed. The parent directory
// is watched so that editors replacing the file are still seen.
func (l *Loader) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %s: %w", dir, err)
	}
	l.logger.Info("watching config file", "path", l.path)

	target := filepath.Clean(l.path)
	for {
		select {
		case <-done:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			l.logger.Info("config change detected", "file", ev.Name, "op", ev.Op)
			cfg, err := l.Load()
			if err != nil {
				l.logger.Error("failed to reload config", "error", err)
				continue
			}
			if l.onChange != nil {
				l.onChange(cfg)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("watcher error", "error", err)
		}
	}
}

func loadFile(path string) (*Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var cfg Runtime
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}
