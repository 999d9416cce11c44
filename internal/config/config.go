package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string
	Retention int
}

// SchedulerConfig holds scan-loop and tracking settings.
type SchedulerConfig struct {
	ScanInterval   time.Duration
	GraceWindow    time.Duration
	IdleThreshold  time.Duration
	ResolveTimeout time.Duration
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Scheduler    SchedulerConfig
	Notification NotificationConfig

	Mode          string
	StateDir      string
	UseUTC        bool
	ShutdownGrace time.Duration
}

const (
	defaultAddr           = "127.0.0.1:7171"
	defaultLogLevel       = "info"
	defaultEventRetention = 1000
	defaultScanInterval   = 2 * time.Second
	defaultGraceWindow    = 5 * time.Minute
	defaultIdleThreshold  = 3 * time.Minute
	defaultResolveTimeout = 60 * time.Second
	defaultShutdownGrace  = 5 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse() (*Config, error) {
	// Load .env file if exists (silent fail if not present)
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "autolauncher", ".env"))
	}
	_ = godotenv.Load(envFiles...) // Ignore error - file is optional

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("AUTOLAUNCH_ADDR", defaultAddr),
			AuthToken: getEnvString("AUTOLAUNCH_AUTH_TOKEN", ""),
		},
		Log: LogConfig{
			Level:     getEnvString("AUTOLAUNCH_LOG_LEVEL", defaultLogLevel),
			Retention: getEnvInt("AUTOLAUNCH_EVENT_RETENTION", defaultEventRetention),
		},
		Scheduler: SchedulerConfig{
			ScanInterval:   getEnvDuration("AUTOLAUNCH_SCAN_INTERVAL", defaultScanInterval),
			GraceWindow:    getEnvDuration("AUTOLAUNCH_GRACE_WINDOW", defaultGraceWindow),
			IdleThreshold:  getEnvDuration("AUTOLAUNCH_IDLE_THRESHOLD", defaultIdleThreshold),
			ResolveTimeout: getEnvDuration("AUTOLAUNCH_RESOLVE_TIMEOUT", defaultResolveTimeout),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("AUTOLAUNCH_BARK_URL", ""),
				Enabled: getEnvBool("AUTOLAUNCH_BARK_ENABLED", false),
			},
		},
		Mode:          getEnvString("AUTOLAUNCH_MODE", "http"),
		StateDir:      getEnvString("AUTOLAUNCH_STATE_DIR", ""),
		UseUTC:        getEnvBool("AUTOLAUNCH_USE_UTC", false),
		ShutdownGrace: getEnvDuration("AUTOLAUNCH_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	var addr, logLevel, mode string
	var eventRetention int
	var stateDir string
	var useUTC bool
	var scanInterval, graceWindow, shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&mode, "mode", "", "Serving mode: http, mcp or both")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store database and state")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&useUTC, "use-utc", false, "Evaluate triggers in UTC instead of system local time")
	flag.IntVar(&eventRetention, "event-retention", 0, "Number of execution-log events to retain")
	flag.DurationVar(&scanInterval, "scan-interval", 0, "How often the engine scans for due tasks")
	flag.DurationVar(&graceWindow, "grace-window", 0, "How late a firing may be before it is skipped")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if eventRetention > 0 {
		cfg.Log.Retention = eventRetention
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	// For bool and duration flags, check if explicitly set via flag.Visit
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "use-utc":
			cfg.UseUTC = useUTC
		case "scan-interval":
			cfg.Scheduler.ScanInterval = scanInterval
		case "grace-window":
			cfg.Scheduler.GraceWindow = graceWindow
		case "shutdown-grace":
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}

	if cfg.Log.Retention < 1 {
		cfg.Log.Retention = defaultEventRetention
	}
	if cfg.Scheduler.ScanInterval <= 0 {
		cfg.Scheduler.ScanInterval = defaultScanInterval
	}
	if cfg.Scheduler.GraceWindow <= 0 {
		cfg.Scheduler.GraceWindow = defaultGraceWindow
	}

	return cfg, nil
}

// Location returns the time zone triggers are evaluated in.
func (c *Config) Location() *time.Location {
	if c.UseUTC {
		return time.UTC
	}
	return time.Local
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "autolauncher")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
