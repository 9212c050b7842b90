// Package config loads the YAML manifest that configures the reifydb
// engine binary: storage backend selection, the HTTP listener, the
// logging subsystem, and the background worker schedule.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reifydb/reifydb/pkg/log"
	"github.com/reifydb/reifydb/pkg/sublogging"
	"github.com/reifydb/reifydb/pkg/subdrop"
	"github.com/reifydb/reifydb/pkg/subworker"
)

// Config is the root of a reifydb.yaml manifest.
type Config struct {
	APIVersion string  `yaml:"apiVersion"`
	Kind       string  `yaml:"kind"`
	Storage    Storage `yaml:"storage"`
	Listen     Listen  `yaml:"listen"`
	Logging    Logging `yaml:"logging"`
	Worker     Worker  `yaml:"worker"`
	Drop       Drop    `yaml:"drop"`
}

// Storage selects and configures the store.Backend a server uses.
type Storage struct {
	// Engine is "memory" or "bolt". Defaults to "memory" when empty.
	Engine  string `yaml:"engine"`
	DataDir string `yaml:"dataDir"`
}

// Listen configures the /metrics and /healthz HTTP listener.
type Listen struct {
	Address string `yaml:"address"`
}

// Logging configures both the synchronous zerolog logger and the
// asynchronous sublogging subsystem fanning out to it.
type Logging struct {
	Level          string        `yaml:"level"`
	JSON           bool          `yaml:"json"`
	BufferCapacity int           `yaml:"bufferCapacity"`
	ChannelSize    int           `yaml:"channelSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
}

// Worker configures the subworker pool every background task schedules
// onto.
type Worker struct {
	NumWorkers         int           `yaml:"numWorkers"`
	MaxQueueSize       int           `yaml:"maxQueueSize"`
	SchedulerInterval  time.Duration `yaml:"schedulerInterval"`
	TaskTimeoutWarning time.Duration `yaml:"taskTimeoutWarning"`
}

// Drop configures the retention-driven GC worker.
type Drop struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batchSize"`
}

// Default returns the configuration a bare `reifydb serve` starts with
// when no manifest is supplied.
func Default() Config {
	workerDefault := subworker.DefaultConfig()
	dropDefault := subdrop.DefaultConfig()
	loggingDefault := sublogging.DefaultConfig()

	return Config{
		APIVersion: "reifydb/v1",
		Kind:       "Engine",
		Storage:    Storage{Engine: "memory"},
		Listen:     Listen{Address: ":9090"},
		Logging: Logging{
			Level:          string(log.InfoLevel),
			JSON:           false,
			BufferCapacity: loggingDefault.BufferCapacity,
			ChannelSize:    loggingDefault.ChannelSize,
			FlushInterval:  loggingDefault.FlushInterval,
		},
		Worker: Worker{
			NumWorkers:         workerDefault.NumWorkers,
			MaxQueueSize:       workerDefault.MaxQueueSize,
			SchedulerInterval:  workerDefault.SchedulerInterval,
			TaskTimeoutWarning: workerDefault.TaskTimeoutWarning,
		},
		Drop: Drop{
			Interval:  dropDefault.Interval,
			BatchSize: dropDefault.BatchSize,
		},
	}
}

// Load reads and parses a reifydb.yaml manifest from path, filling any
// field the file omits with the value Default() would have used.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects a manifest that names an unknown storage engine or a
// bolt engine with no data directory.
func (c Config) Validate() error {
	switch c.Storage.Engine {
	case "", "memory":
	case "bolt":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.dataDir is required for the bolt engine")
		}
	default:
		return fmt.Errorf("unknown storage engine %q", c.Storage.Engine)
	}
	return nil
}

// LogConfig translates the manifest's logging section into a
// pkg/log.Config.
func (c Config) LogConfig() log.Config {
	return log.Config{Level: log.Level(c.Logging.Level), JSONOutput: c.Logging.JSON}
}

// SublogConfig translates the manifest's logging section into a
// pkg/sublogging.Config.
func (c Config) SublogConfig() sublogging.Config {
	return sublogging.Config{
		BufferCapacity: c.Logging.BufferCapacity,
		ChannelSize:    c.Logging.ChannelSize,
		FlushInterval:  c.Logging.FlushInterval,
		MinLevel:       sublogging.LevelInfo,
	}
}

// WorkerConfig translates the manifest's worker section into a
// pkg/subworker.Config.
func (c Config) WorkerConfig() subworker.Config {
	return subworker.Config{
		NumWorkers:         c.Worker.NumWorkers,
		MaxQueueSize:       c.Worker.MaxQueueSize,
		SchedulerInterval:  c.Worker.SchedulerInterval,
		TaskTimeoutWarning: c.Worker.TaskTimeoutWarning,
	}
}

// DropConfig translates the manifest's drop section into a
// pkg/subdrop.Config.
func (c Config) DropConfig() subdrop.Config {
	return subdrop.Config{Interval: c.Drop.Interval, BatchSize: c.Drop.BatchSize}
}
