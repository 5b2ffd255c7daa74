package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/me/controlnode/internal/logging"
	"github.com/me/controlnode/pkg/model"
)

// EnvPrefix prefixes every environment variable read by this package.
const EnvPrefix = "CONTROLNODE_"

// LogConfig selects the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Quiet  bool   `yaml:"quiet"`
}

// Options converts the config to logging options.
func (c LogConfig) Options() logging.Options {
	return logging.Options{Level: c.Level, Format: c.Format, Quiet: c.Quiet}
}

// ServerConfig holds configuration for the control node.
type ServerConfig struct {
	Addr    string `yaml:"addr"`     // Listen address (default ":46212")
	RPCPath string `yaml:"rpc_path"` // JSON-RPC endpoint path (default "/jsonrpc")
	// DB is a SQLite path (":memory:" for testing) or a postgres:// DSN.
	DB string `yaml:"db"`
	// Databases is advertised to workers in every offer.
	Databases            []model.DatabaseLocation `yaml:"databases"`
	NotificationInterval time.Duration            `yaml:"notification_interval"`
	Tracing              string                   `yaml:"tracing"` // none, stdout
	Log                  LogConfig                `yaml:"log"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:                 ":46212",
		RPCPath:              "/jsonrpc",
		NotificationInterval: 10 * time.Second,
		Tracing:              "none",
		Log:                  LogConfig{Level: "info", Format: "text"},
	}
}

// WorkerConfig holds configuration for a worker agent.
type WorkerConfig struct {
	ServerURL    string        `yaml:"server_url"` // control node JSON-RPC URL
	WorkerID     string        `yaml:"worker_id"`  // generated when empty
	TaskTypes    []string      `yaml:"task_types"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// Commands maps a task type to the command line that performs it.
	Commands map[string]string `yaml:"commands"`
	WorkDir  string            `yaml:"work_dir"`
	Log      LogConfig         `yaml:"log"`
}

// DefaultWorkerConfig returns sensible defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		ServerURL:    "http://localhost:46212/jsonrpc",
		TaskTypes:    []string{"simulation", "basicStatistics", "idleTimes", "throughput"},
		PollInterval: 5 * time.Second,
		Log:          LogConfig{Level: "info", Format: "text"},
	}
}

// SupervisorConfig holds configuration for the lease monitor.
type SupervisorConfig struct {
	ServerURL     string        `yaml:"server_url"`
	CheckInterval time.Duration `yaml:"check_interval"`
	// RestartAfter is how long a lease may go without renewal before its task is restarted.
	RestartAfter time.Duration `yaml:"restart_after"`
	Log          LogConfig     `yaml:"log"`
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		ServerURL:     "http://localhost:46212/jsonrpc",
		CheckInterval: 30 * time.Second,
		RestartAfter:  120 * time.Second,
		Log:           LogConfig{Level: "info", Format: "text"},
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadServerConfig layers an optional YAML file and the environment over the defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	e := envReader{}
	e.str("ADDR", &cfg.Addr)
	e.str("RPC_PATH", &cfg.RPCPath)
	e.str("DB", &cfg.DB)
	e.databases("DATABASES", &cfg.Databases)
	e.duration("NOTIFICATION_INTERVAL", &cfg.NotificationInterval)
	e.str("TRACING", &cfg.Tracing)
	e.log(&cfg.Log)
	return cfg, e.err()
}

// LoadWorkerConfig layers an optional YAML file and the environment over the defaults.
func LoadWorkerConfig(path string) (WorkerConfig, error) {
	cfg := DefaultWorkerConfig()
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	e := envReader{}
	e.str("URL", &cfg.ServerURL)
	e.str("WORKER_ID", &cfg.WorkerID)
	e.list("TASK_TYPES", &cfg.TaskTypes)
	e.duration("POLL_INTERVAL", &cfg.PollInterval)
	e.str("WORK_DIR", &cfg.WorkDir)
	e.log(&cfg.Log)
	return cfg, e.err()
}

// LoadSupervisorConfig layers an optional YAML file and the environment over the defaults.
func LoadSupervisorConfig(path string) (SupervisorConfig, error) {
	cfg := DefaultSupervisorConfig()
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	e := envReader{}
	e.str("URL", &cfg.ServerURL)
	e.duration("CHECK_INTERVAL", &cfg.CheckInterval)
	e.duration("RESTART_AFTER", &cfg.RestartAfter)
	e.log(&cfg.Log)
	return cfg, e.err()
}

func readYAML(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// envReader applies CONTROLNODE_* variables and collects parse errors.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = d
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = b
}

// databases parses "host:port,host:port".
func (e *envReader) databases(key string, dst *[]model.DatabaseLocation) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	locs, err := ParseDatabases(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = locs
}

func (e *envReader) log(dst *LogConfig) {
	e.str("LOG_LEVEL", &dst.Level)
	e.str("LOG_FORMAT", &dst.Format)
	e.boolean("QUIET", &dst.Quiet)
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

// ParseDatabases parses a comma-separated list of host:port pairs.
func ParseDatabases(s string) ([]model.DatabaseLocation, error) {
	var out []model.DatabaseLocation
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		i := strings.LastIndex(item, ":")
		if i <= 0 {
			return nil, fmt.Errorf("database %q: want host:port", item)
		}
		port, err := strconv.Atoi(item[i+1:])
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("database %q: invalid port", item)
		}
		out = append(out, model.DatabaseLocation{Host: item[:i], Port: port})
	}
	return out, nil
}
