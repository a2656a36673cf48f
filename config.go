package cann

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config defines the settings used to initialize a Context
type Config struct {
	// DeviceCount is the number of devices enumerated by the runtime
	DeviceCount int `yaml:"device_count"`
	// MemoryLimit is the number of bytes each device may allocate, zero
	// means unlimited
	MemoryLimit int64 `yaml:"memory_limit"`
	// Workers is the number of goroutines a kernel fans out to when
	// processing rows in parallel
	Workers int `yaml:"workers"`
	// QueueDepth is the number of operations that can be pending on a
	// stream before enqueuing blocks
	QueueDepth int `yaml:"queue_depth"`
	// LogLevel is one of debug, info, warn or error
	LogLevel string `yaml:"log_level"`
	// CPUAffinity lists the CPU cores stream workers are pinned to, empty
	// leaves scheduling to the OS
	CPUAffinity []int `yaml:"cpu_affinity"`

	// Logger overrides the logger built from LogLevel
	Logger *slog.Logger `yaml:"-"`
	// Allocator overrides the default pooled device allocator
	Allocator Allocator `yaml:"-"`
}

// MaxCPUCores is the number of CPU cores an affinity set can address
const MaxCPUCores = 1024

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		DeviceCount: 1,
		Workers:     runtime.NumCPU(),
		QueueDepth:  1024,
		LogLevel:    "info",
	}
}

// LoadConfig reads a yaml config file, applies environment overrides and
// fills unset fields with their defaults
func LoadConfig(path string) (Config, error) {

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)

	if err != nil {
		return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	err = yaml.Unmarshal(data, &cfg)

	if err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	err = cfg.ApplyEnv()

	if err != nil {
		return Config{}, err
	}

	cfg = cfg.withDefaults()

	err = cfg.Validate()

	if err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from the CANN_* environment variables
func (c *Config) ApplyEnv() error {

	if s := envVar("CANN_DEVICE_COUNT"); s != "" {
		n, err := strconv.Atoi(s)

		if err != nil {
			return fmt.Errorf("invalid CANN_DEVICE_COUNT %q: %w", s, err)
		}

		c.DeviceCount = n
	}

	if s := envVar("CANN_MEMORY_LIMIT"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)

		if err != nil {
			return fmt.Errorf("invalid CANN_MEMORY_LIMIT %q: %w", s, err)
		}

		c.MemoryLimit = n
	}

	if s := envVar("CANN_WORKERS"); s != "" {
		n, err := strconv.Atoi(s)

		if err != nil {
			return fmt.Errorf("invalid CANN_WORKERS %q: %w", s, err)
		}

		c.Workers = n
	}

	if s := envVar("CANN_QUEUE_DEPTH"); s != "" {
		n, err := strconv.Atoi(s)

		if err != nil {
			return fmt.Errorf("invalid CANN_QUEUE_DEPTH %q: %w", s, err)
		}

		c.QueueDepth = n
	}

	if s := envVar("CANN_LOG_LEVEL"); s != "" {
		c.LogLevel = s
	}

	if s := envVar("CANN_CPU_AFFINITY"); s != "" {
		cores, err := parseCores(s)

		if err != nil {
			return fmt.Errorf("invalid CANN_CPU_AFFINITY %q: %w", s, err)
		}

		c.CPUAffinity = cores
	}

	return nil
}

// Validate checks the config values are usable
func (c Config) Validate() error {

	if c.DeviceCount < 1 {
		return fmt.Errorf("device count must be at least 1, got %d", c.DeviceCount)
	}

	if c.MemoryLimit < 0 {
		return fmt.Errorf("memory limit must not be negative, got %d", c.MemoryLimit)
	}

	if c.QueueDepth < 1 {
		return fmt.Errorf("queue depth must be at least 1, got %d", c.QueueDepth)
	}

	for _, core := range c.CPUAffinity {
		if err := checkCore(core); err != nil {
			return fmt.Errorf("invalid cpu affinity: %w", err)
		}
	}

	_, err := parseLevel(c.LogLevel)
	return err
}

// checkCore checks a CPU core number can be held by an affinity set
func checkCore(core int) error {

	if core < 0 || core >= MaxCPUCores {
		return fmt.Errorf("core %d is outside 0-%d", core, MaxCPUCores-1)
	}

	return nil
}

// withDefaults fills zero values with the defaults
func (c Config) withDefaults() Config {

	def := DefaultConfig()

	if c.DeviceCount == 0 {
		c.DeviceCount = def.DeviceCount
	}

	if c.Workers <= 0 {
		c.Workers = def.Workers
	}

	if c.QueueDepth == 0 {
		c.QueueDepth = def.QueueDepth
	}

	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	return c
}

// logger returns the configured logger or one writing to stderr at the
// configured level
func (c Config) logger() *slog.Logger {

	if c.Logger != nil {
		return c.Logger
	}

	level, err := parseLevel(c.LogLevel)

	if err != nil {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// parseLevel converts a level name to a slog.Level
func parseLevel(s string) (slog.Level, error) {

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// parseCores parses a comma separated list of CPU core numbers, eg: 4,5,6,7
func parseCores(s string) ([]int, error) {

	var cores []int

	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))

		if err != nil {
			return nil, err
		}

		if err := checkCore(n); err != nil {
			return nil, err
		}

		cores = append(cores, n)
	}

	return cores, nil
}

// envVar returns the trimmed environment variable with surrounding quotes
// removed
func envVar(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
