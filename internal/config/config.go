package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bpepple/clu-comics-sub000/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Defaults for optional settings.
const (
	defaultCacheTTL        = 5 * time.Second
	defaultCacheCapacity   = 500
	defaultRebuildInterval = 30 * time.Minute
)

// Config holds all application configuration.
type Config struct {
	// LibraryRoots are the absolute paths of the configured library roots,
	// normalized to forward slashes.
	LibraryRoots []string

	// StagingDir is the active-downloads staging folder. It is never indexed
	// or cached, even when nested under a library root.
	StagingDir string

	// DatabasePath is the full path to the SQLite index file.
	DatabasePath string

	Port        string
	MetricsPort string

	CacheTTL        time.Duration
	CacheCapacity   int
	RebuildInterval time.Duration

	MetricsEnabled bool
	WatchEnabled   bool
}

// Load reads configuration from the environment (and an optional .env file)
// and validates it. Library roots that do not exist are kept but logged; a
// root may come and go at runtime (network shares) and the reconciler skips
// unavailable roots on its own.
func Load() (*Config, error) {
	// A missing .env file is not an error; env vars take precedence anyway.
	if err := godotenv.Load(); err == nil {
		logging.Debug("Loaded configuration overrides from .env")
	}

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	rootsStr := getEnv("LIBRARY_ROOTS", "/library")
	stagingDir := getEnv("STAGING_DIR", "")
	databaseDir := getEnv("DATABASE_DIR", "/database")
	port := getEnv("PORT", "8080")
	metricsPort := getEnv("METRICS_PORT", "9090")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	watchEnabled := getEnvBool("WATCH_ENABLED", true)

	cacheTTL := getEnvDuration("CACHE_TTL", defaultCacheTTL)
	rebuildInterval := getEnvDuration("REBUILD_INTERVAL", defaultRebuildInterval)
	cacheCapacity := getEnvInt("CACHE_CAPACITY", defaultCacheCapacity)
	if cacheCapacity < 1 {
		logging.Warn("  Invalid CACHE_CAPACITY %d, using default: %d", cacheCapacity, defaultCacheCapacity)
		cacheCapacity = defaultCacheCapacity
	}

	roots, err := parseRoots(rootsStr)
	if err != nil {
		return nil, err
	}

	if stagingDir != "" {
		stagingDir = NormalizePath(stagingDir)
	}

	logging.Info("  LIBRARY_ROOTS:     %s", strings.Join(roots, ", "))
	logging.Info("  STAGING_DIR:       %s", stagingDir)
	logging.Info("  DATABASE_DIR:      %s", databaseDir)
	logging.Info("  PORT:              %s", port)
	logging.Info("  METRICS_PORT:      %s", metricsPort)
	logging.Info("  METRICS_ENABLED:   %v", metricsEnabled)
	logging.Info("  WATCH_ENABLED:     %v", watchEnabled)
	logging.Info("  CACHE_TTL:         %s", cacheTTL)
	logging.Info("  CACHE_CAPACITY:    %d", cacheCapacity)
	logging.Info("  REBUILD_INTERVAL:  %s", rebuildInterval)
	logging.Info("  LOG_LEVEL:         %s", logging.GetLevel())

	for _, root := range roots {
		if info, err := os.Stat(root); err != nil {
			logging.Warn("  Library root %s is not currently available: %v", root, err)
		} else if !info.IsDir() {
			return nil, fmt.Errorf("library root %s is not a directory", root)
		}
	}

	if err := ensureWritableDir(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory %s: %w", databaseDir, err)
	}

	return &Config{
		LibraryRoots:    roots,
		StagingDir:      stagingDir,
		DatabasePath:    filepath.ToSlash(filepath.Join(databaseDir, "index.db")),
		Port:            port,
		MetricsPort:     metricsPort,
		CacheTTL:        cacheTTL,
		CacheCapacity:   cacheCapacity,
		RebuildInterval: rebuildInterval,
		MetricsEnabled:  metricsEnabled,
		WatchEnabled:    watchEnabled,
	}, nil
}

// NormalizePath returns the absolute, forward-slash form of a path. Relative
// or messy inputs are cleaned defensively rather than rejected.
func NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return filepath.ToSlash(abs)
}

func parseRoots(rootsStr string) ([]string, error) {
	var roots []string
	for _, part := range strings.Split(rootsStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		roots = append(roots, NormalizePath(part))
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("LIBRARY_ROOTS is empty")
	}
	return roots, nil
}

func ensureWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("  Invalid %s %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("  Invalid %s %q, using default: %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
