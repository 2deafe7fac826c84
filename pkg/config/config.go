package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	Prod = "prod"
	Dev  = "dev"
	Test = "test"
)

const envPrefix = "SEGREG"

var (
	ErrNoTables          = errors.New("no tables configured")
	ErrEmptyTableName    = errors.New("table name must not be empty")
	ErrDuplicateTable    = errors.New("duplicate table name")
	ErrUnknownReadMode   = errors.New("unknown read mode")
	ErrUnknownReclaimMod = errors.New("unknown reclaim mode")
)

// ReadMode tells the loader how a segment file is brought into memory.
type ReadMode string

const (
	Heap ReadMode = "heap"
	MMap ReadMode = "mmap"
)

const (
	ReclaimInline     = "inline"
	ReclaimBackground = "background"
)

type Config struct {
	Node NodeBox `yaml:"node"`
}

type NodeBox struct {
	Env         string        `yaml:"env"`
	Api         Api           `yaml:"api"`
	Logs        Logs          `yaml:"logs"`
	Preallocate Preallocation `yaml:"preallocate"`
	Reclaim     Reclaim       `yaml:"reclaim"`
	Loader      Loader        `yaml:"loader"`
	ForceGC     ForceGC       `yaml:"force_gc"`
	Tables      []Table       `yaml:"tables"`
}

type Api struct {
	Name string `yaml:"name"` // e.g. "segment-registry"
	Port string `yaml:"port"` // e.g. "8020"
}

type Logs struct {
	Level         string        `yaml:"level"`          // zerolog level name
	StatsInterval time.Duration `yaml:"stats_interval"` // 0 disables per-table stats logging
}

type Preallocation struct {
	PerShard int `yaml:"per_shard"`
}

// Reclaim selects who pays for segment teardown.
// "inline" - the goroutine which drops the last reference, "background" - a pool of reclaim workers.
type Reclaim struct {
	Mode     string `yaml:"mode"`
	Workers  int    `yaml:"workers"`
	Capacity int    `yaml:"capacity"`
}

type Loader struct {
	Rate  float64 `yaml:"rate"`  // segment loads per second, 0 means unlimited
	Burst int     `yaml:"burst"` // limiter burst
	Retry Retry   `yaml:"retry"`
}

type Retry struct {
	Attempts        int           `yaml:"attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

type ForceGC struct {
	Enabled           bool          `yaml:"enabled"`
	GCInterval        time.Duration `yaml:"gc_interval"`
	FreeOsMemInterval time.Duration `yaml:"free_os_mem_interval"`
}

// Table holds per-table settings. The registry carries them without interpreting;
// the loader and the node bootstrap are the consumers.
type Table struct {
	Name          string   `yaml:"name"`
	DataDir       string   `yaml:"data_dir"`
	ReadMode      ReadMode `yaml:"read_mode"`
	WorkerThreads int      `yaml:"worker_threads"`
}

// LoadConfig reads the yaml file by path, applies SEGREG_* environment overrides,
// fills defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	path, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute config filepath: %w", err)
	}

	if _, err = os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config from %s: %w", path, err)
	}

	return cfg, nil
}

// Parse builds a config from raw yaml bytes.
func Parse(data []byte) (*Config, error) {
	var cfg *Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if cfg == nil {
		cfg = &Config{}
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if env := v.GetString("env"); env != "" {
		c.Node.Env = env
	}
	if level := v.GetString("logs.level"); level != "" {
		c.Node.Logs.Level = level
	}
	if port := v.GetString("api.port"); port != "" {
		c.Node.Api.Port = port
	}
	if mode := v.GetString("reclaim.mode"); mode != "" {
		c.Node.Reclaim.Mode = mode
	}
}

func (c *Config) setDefaults() {
	n := &c.Node
	if n.Env == "" {
		n.Env = Dev
	}
	if n.Api.Name == "" {
		n.Api.Name = "segment-registry"
	}
	if n.Api.Port == "" {
		n.Api.Port = "8020"
	}
	if n.Logs.Level == "" {
		n.Logs.Level = "info"
	}
	if n.Reclaim.Mode == "" {
		n.Reclaim.Mode = ReclaimInline
	}
	if n.Reclaim.Workers <= 0 {
		n.Reclaim.Workers = 2
	}
	if n.Reclaim.Capacity <= 0 {
		n.Reclaim.Capacity = 200
	}
	if n.Loader.Burst <= 0 {
		n.Loader.Burst = 1
	}
	if n.Loader.Retry.Attempts <= 0 {
		n.Loader.Retry.Attempts = 1
	}
	if n.Loader.Retry.InitialInterval <= 0 {
		n.Loader.Retry.InitialInterval = 100 * time.Millisecond
	}
	if n.Loader.Retry.MaxInterval <= 0 {
		n.Loader.Retry.MaxInterval = 5 * time.Second
	}
	if n.Loader.Retry.Multiplier <= 1 {
		n.Loader.Retry.Multiplier = 2
	}
	if n.ForceGC.GCInterval <= 0 {
		n.ForceGC.GCInterval = 10 * time.Second
	}
	if n.ForceGC.FreeOsMemInterval <= 0 {
		n.ForceGC.FreeOsMemInterval = time.Minute
	}
	for i := range n.Tables {
		if n.Tables[i].ReadMode == "" {
			n.Tables[i].ReadMode = Heap
		}
		if n.Tables[i].WorkerThreads <= 0 {
			n.Tables[i].WorkerThreads = 1
		}
	}
}

// Validate checks the invariants other packages rely on.
func (c *Config) Validate() error {
	n := &c.Node

	switch n.Reclaim.Mode {
	case ReclaimInline, ReclaimBackground:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReclaimMod, n.Reclaim.Mode)
	}

	if len(n.Tables) == 0 {
		return ErrNoTables
	}

	seen := make(map[string]struct{}, len(n.Tables))
	for _, table := range n.Tables {
		if table.Name == "" {
			return ErrEmptyTableName
		}
		if _, ok := seen[table.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateTable, table.Name)
		}
		seen[table.Name] = struct{}{}

		switch table.ReadMode {
		case Heap, MMap:
		default:
			return fmt.Errorf("%w: %q (table %q)", ErrUnknownReadMode, table.ReadMode, table.Name)
		}
	}

	return nil
}

func (c *Config) IsProd() bool {
	return c.Node.Env == Prod
}

func (c *Config) IsBackgroundReclaim() bool {
	return c.Node.Reclaim.Mode == ReclaimBackground
}

// Table returns the table settings by name.
func (c *Config) Table(name string) (Table, bool) {
	for _, table := range c.Node.Tables {
		if table.Name == name {
			return table, true
		}
	}
	return Table{}, false
}
