package startup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"media-conversions/internal/filesystem"
	"media-conversions/internal/logging"
	"media-conversions/internal/workers"
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

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	DatabaseDir     string
	TempDir         string
	QueueDir        string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool

	ConversionsFile           string
	ImageDriver               string
	FFmpegPath                string
	FFprobePath               string
	QueueConversionsByDefault bool
	ConversionWorkers         int
	ConversionTimeout         time.Duration
	UseTinyPlaceholders       bool

	DefaultDisk string
	Disks       []filesystem.DiskConfig

	// Derived paths
	DatabasePath string
}

// Disk returns the configuration of the named disk.
func (c *Config) Disk(name string) (filesystem.DiskConfig, bool) {
	for _, d := range c.Disks {
		if d.Name == name {
			return d, true
		}
	}
	return filesystem.DiskConfig{}, false
}

// LoadConfig loads and validates configuration from environment variables.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()
	return ReadConfig()
}

// ReadConfig is LoadConfig without the banner and system report, for
// command line tools sharing the server's environment.
func ReadConfig() (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	loadDotEnv(".env")

	databaseDir := getEnv("DATABASE_DIR", "/database")
	tempDir := getEnv("TEMP_DIR", filepath.Join(os.TempDir(), "media-conversions"))
	queueDir := getEnv("QUEUE_DIR", "")
	port := getEnv("PORT", "8080")
	metricsPort := getEnv("METRICS_PORT", "9090")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)
	conversionsFile := getEnv("CONVERSIONS_FILE", "conversions.yaml")
	imageDriver := strings.ToLower(getEnv("IMAGE_DRIVER", "imaging"))
	ffmpegPath := getEnv("FFMPEG_PATH", "ffmpeg")
	ffprobePath := getEnv("FFPROBE_PATH", "ffprobe")
	queueByDefault := getEnvBool("QUEUE_CONVERSIONS_BY_DEFAULT", true)
	conversionWorkers := workers.ForMixed(8)
	timeoutStr := getEnv("CONVERSION_TIMEOUT", "5m")
	tinyPlaceholders := getEnvBool("USE_TINY_PLACEHOLDERS", true)
	defaultDisk := getEnv("DEFAULT_DISK", filesystem.DriverLocal)

	logging.Info("  DATABASE_DIR:                  %s", databaseDir)
	logging.Info("  TEMP_DIR:                      %s", tempDir)
	logging.Info("  QUEUE_DIR:                     %s", orDefault(queueDir, "(DATABASE_DIR/queue)"))
	logging.Info("  PORT:                          %s", port)
	logging.Info("  METRICS_PORT:                  %s", metricsPort)
	logging.Info("  METRICS_ENABLED:               %v", metricsEnabled)
	logging.Info("  LOG_HEALTH_CHECKS:             %v", logHealthChecks)
	logging.Info("  LOG_LEVEL:                     %s", logging.GetLevel())
	logging.Info("  CONVERSIONS_FILE:              %s", conversionsFile)
	logging.Info("  IMAGE_DRIVER:                  %s", imageDriver)
	logging.Info("  FFMPEG_PATH:                   %s", ffmpegPath)
	logging.Info("  FFPROBE_PATH:                  %s", ffprobePath)
	logging.Info("  QUEUE_CONVERSIONS_BY_DEFAULT:  %v", queueByDefault)
	logging.Info("  %s:            %d", workers.EnvOverride, conversionWorkers)
	logging.Info("  CONVERSION_TIMEOUT:            %s", timeoutStr)
	logging.Info("  USE_TINY_PLACEHOLDERS:         %v", tinyPlaceholders)
	logging.Info("  DEFAULT_DISK:                  %s", defaultDisk)

	switch imageDriver {
	case "imaging", "vips":
	default:
		return nil, fmt.Errorf("invalid IMAGE_DRIVER %q (want imaging or vips)", imageDriver)
	}

	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil || timeout < 0 {
		logging.Warn("  Invalid CONVERSION_TIMEOUT, using default: 5m")
		timeout = 5 * time.Minute
	}

	disks := loadDisks()

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	databaseDir, err = filepath.Abs(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", databaseDir)

	tempDir, err = filepath.Abs(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve temp directory path: %w", err)
	}
	logging.Info("  Temp directory (absolute): %s", tempDir)

	if queueDir == "" {
		queueDir = filepath.Join(databaseDir, "queue")
	}
	queueDir, err = filepath.Abs(queueDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve queue directory path: %w", err)
	}
	logging.Info("  Queue directory (absolute): %s", queueDir)

	config := &Config{
		DatabaseDir:               databaseDir,
		TempDir:                   tempDir,
		QueueDir:                  queueDir,
		Port:                      port,
		MetricsPort:               metricsPort,
		MetricsEnabled:            metricsEnabled,
		LogHealthChecks:           logHealthChecks,
		ConversionsFile:           conversionsFile,
		ImageDriver:               imageDriver,
		FFmpegPath:                ffmpegPath,
		FFprobePath:               ffprobePath,
		QueueConversionsByDefault: queueByDefault,
		ConversionWorkers:         conversionWorkers,
		ConversionTimeout:         timeout,
		UseTinyPlaceholders:       tinyPlaceholders,
		DefaultDisk:               defaultDisk,
		Disks:                     disks,
		DatabasePath:              filepath.Join(databaseDir, "media.db"),
	}

	if _, ok := config.Disk(defaultDisk); !ok {
		return nil, fmt.Errorf("DEFAULT_DISK %q is not configured", defaultDisk)
	}

	for _, dir := range []struct{ path, name string }{
		{databaseDir, "database"},
		{tempDir, "temp"},
		{queueDir, "queue"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		if err := testWriteAccess(dir.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable", dir.name)
	}

	if d, ok := config.Disk(filesystem.DriverLocal); ok {
		if err := ensureDirectory(d.Root, "local disk"); err != nil {
			return nil, fmt.Errorf("local disk error: %w", err)
		}
	}

	logging.Info("")
	logging.Info("  Disks:")
	for _, d := range disks {
		logging.Info("    %-6s %s", d.Name, describeDisk(d))
	}
	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:    ENABLED (required)")
	logging.Info("    Queue:       ENABLED (required)")
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// loadDisks builds the disk list. The local disk always exists; object
// store disks are added when their bucket is set.
func loadDisks() []filesystem.DiskConfig {
	disks := []filesystem.DiskConfig{{
		Name:   filesystem.DriverLocal,
		Driver: filesystem.DriverLocal,
		Root:   getEnv("LOCAL_DISK_ROOT", "/media"),
		URL:    getEnv("LOCAL_DISK_URL", "/media"),
	}}

	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		disks = append(disks, filesystem.DiskConfig{
			Name:      filesystem.DriverS3,
			Driver:    filesystem.DriverS3,
			Bucket:    bucket,
			Region:    getEnv("S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Root:      os.Getenv("S3_ROOT"),
			URL:       os.Getenv("S3_DOMAIN"),
		})
	}

	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		disks = append(disks, filesystem.DiskConfig{
			Name:            filesystem.DriverGCS,
			Driver:          filesystem.DriverGCS,
			Bucket:          bucket,
			CredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
			URL:             os.Getenv("GCS_DOMAIN"),
		})
	}

	return disks
}

func describeDisk(d filesystem.DiskConfig) string {
	switch d.Driver {
	case filesystem.DriverLocal:
		return fmt.Sprintf("local %s (url %s)", d.Root, d.URL)
	case filesystem.DriverS3:
		if d.Endpoint != "" {
			return fmt.Sprintf("s3 bucket %s via %s", d.Bucket, d.Endpoint)
		}
		return fmt.Sprintf("s3 bucket %s in %s", d.Bucket, d.Region)
	default:
		return fmt.Sprintf("%s bucket %s", d.Driver, d.Bucket)
	}
}

func loadDotEnv(path string) {
	err := godotenv.Load(path)
	switch {
	case err == nil:
		logging.Info("  Loaded environment from %s", path)
	case errors.Is(err, fs.ErrNotExist):
		logging.Debug("  No %s file found, using process environment", path)
	default:
		logging.Warn("  Failed to load %s: %v", path, err)
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogConversionsInit logs the loaded conversion declarations.
func LogConversionsInit(path string, modelTypes []string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CONVERSIONS")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Loaded %s", path)
	if len(modelTypes) == 0 {
		logging.Warn("  No model types declare conversions")
		return
	}
	for _, t := range modelTypes {
		logging.Info("    %s", t)
	}
}

// LogGeneratorsInit logs the image driver and checks FFmpeg.
func LogGeneratorsInit(imageDriver, ffmpegPath string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("GENERATORS")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Image driver: %s", imageDriver)

	if err := checkFFmpeg(ffmpegPath); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Video conversions will fail until FFmpeg is installed")
	} else {
		logging.Info("  [OK] FFmpeg is available")
	}
}

// LogQueueInit logs queue initialization
func LogQueueInit(dir string, workerCount, pending int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("QUEUE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Directory: %s", dir)
	logging.Info("  Workers:   %d", workerCount)
	if pending > 0 {
		logging.Info("  Replaying %d pending jobs", pending)
	}
	logging.Info("  [OK] Queue started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	// api/media/{id}/... groups under the segment after the id
	if first == "api" && len(parts) > 1 {
		sub := strings.Split(parts[1], "/")
		if len(sub) >= 3 && strings.HasPrefix(sub[1], "{") {
			return "api/" + sub[0] + "/" + sub[2]
		}
		return "api/" + sub[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api/media", config.Port)
	logging.Info("    Health:        http://0.0.0.0:%s/health", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
                  _ _                                     _
  _ __  ___ __| (_)__ _   __ ___ _ ___ _____ _ _ __(_)___ _ _  ___
 | '  \/ -_) _' | / _' | / _/ _ \ ' \ V / -_) '_(_-< / _ \ ' \(_-<
 |_|_|_\___\__,_|_\__,_| \__\___/_||_\_/\___|_| /__/_\___/_||_/__/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkFFmpeg(ffmpegPath string) error {
	path, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", ffmpegPath)
	}
	logging.Debug("  FFmpeg path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		logging.Debug("  FFmpeg version: %s", strings.TrimSpace(line))
	}
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
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
