package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"media-conversions/internal/filesystem"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		setEnv   bool
		want     string
	}{
		{"Returns default when env var not set", "", false, "default"},
		{"Returns env value when set", "custom", true, "custom"},
		{"Returns default when env var is empty", "", true, "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const key = "MEDIA_CONVERSIONS_TEST_VAR"
			if tt.setEnv {
				t.Setenv(key, tt.envValue)
			} else {
				t.Setenv(key, "")
				os.Unsetenv(key)
			}

			if got := getEnv(key, "default"); got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"0", true, false},
		{"not-a-bool", true, true},
		{"not-a-bool", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("MEDIA_CONVERSIONS_TEST_BOOL", tt.value)
			if got := getEnvBool("MEDIA_CONVERSIONS_TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.defaultValue, got, tt.want)
			}
		})
	}
}

// setBaseEnv points every directory at a fresh temp dir and clears the
// object store variables.
func setBaseEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("DATABASE_DIR", filepath.Join(root, "db"))
	t.Setenv("TEMP_DIR", filepath.Join(root, "tmp"))
	t.Setenv("QUEUE_DIR", "")
	t.Setenv("LOCAL_DISK_ROOT", filepath.Join(root, "media"))
	t.Setenv("LOCAL_DISK_URL", "")
	t.Setenv("IMAGE_DRIVER", "")
	t.Setenv("DEFAULT_DISK", "")
	t.Setenv("CONVERSION_TIMEOUT", "")
	t.Setenv("QUEUE_CONVERSIONS_BY_DEFAULT", "")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("GCS_BUCKET", "")
	return root
}

func TestLoadConfigDefaults(t *testing.T) {
	root := setBaseEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.DatabasePath != filepath.Join(root, "db", "media.db") {
		t.Errorf("DatabasePath = %s", cfg.DatabasePath)
	}
	if cfg.QueueDir != filepath.Join(root, "db", "queue") {
		t.Errorf("QueueDir = %s", cfg.QueueDir)
	}
	if cfg.ImageDriver != "imaging" {
		t.Errorf("ImageDriver = %s", cfg.ImageDriver)
	}
	if cfg.ConversionTimeout != 5*time.Minute {
		t.Errorf("ConversionTimeout = %v", cfg.ConversionTimeout)
	}
	if !cfg.QueueConversionsByDefault {
		t.Error("QueueConversionsByDefault should default to true")
	}
	if cfg.ConversionWorkers < 1 {
		t.Errorf("ConversionWorkers = %d", cfg.ConversionWorkers)
	}
	if cfg.DefaultDisk != filesystem.DriverLocal {
		t.Errorf("DefaultDisk = %s", cfg.DefaultDisk)
	}
	if len(cfg.Disks) != 1 || cfg.Disks[0].URL != "/media" {
		t.Errorf("Disks = %+v", cfg.Disks)
	}

	for _, dir := range []string{cfg.DatabaseDir, cfg.TempDir, cfg.QueueDir, cfg.Disks[0].Root} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("directory %s was not created: %v", dir, err)
		}
	}
}

func TestLoadConfigObjectStoreDisks(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("S3_BUCKET", "media")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_DOMAIN", "https://cdn.example.com")
	t.Setenv("GCS_BUCKET", "archive")
	t.Setenv("DEFAULT_DISK", "s3")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	s3, ok := cfg.Disk("s3")
	if !ok {
		t.Fatal("s3 disk missing")
	}
	if s3.Bucket != "media" || s3.Endpoint != "http://minio:9000" || s3.URL != "https://cdn.example.com" {
		t.Errorf("s3 disk = %+v", s3)
	}
	if s3.Region != "us-east-1" {
		t.Errorf("s3 region = %s", s3.Region)
	}
	gcs, ok := cfg.Disk("gcs")
	if !ok || gcs.Bucket != "archive" || gcs.Driver != filesystem.DriverGCS {
		t.Errorf("gcs disk = %+v, %v", gcs, ok)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value, wantErr string
	}{
		{"unknown image driver", "IMAGE_DRIVER", "magick", "IMAGE_DRIVER"},
		{"unconfigured default disk", "DEFAULT_DISK", "s3", "DEFAULT_DISK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfig()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("LoadConfig() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigInvalidTimeoutFallsBack(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CONVERSION_TIMEOUT", "soon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ConversionTimeout != 5*time.Minute {
		t.Errorf("ConversionTimeout = %v, want 5m", cfg.ConversionTimeout)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	loadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadDotEnvKeepsProcessEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "MEDIA_CONVERSIONS_DOTENV_A=from-file\nMEDIA_CONVERSIONS_DOTENV_B=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MEDIA_CONVERSIONS_DOTENV_A", "from-env")
	t.Setenv("MEDIA_CONVERSIONS_DOTENV_B", "")
	os.Unsetenv("MEDIA_CONVERSIONS_DOTENV_B")

	loadDotEnv(path)

	if got := os.Getenv("MEDIA_CONVERSIONS_DOTENV_A"); got != "from-env" {
		t.Errorf("A = %q, want from-env", got)
	}
	if got := os.Getenv("MEDIA_CONVERSIONS_DOTENV_B"); got != "from-file" {
		t.Errorf("B = %q, want from-file", got)
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := map[string]string{
		"/health":                                "health",
		"/api/media/{id}":                        "api/media",
		"/api/media/{id}/conversions":            "api/media/conversions",
		"/api/media/{id}/responsive/{conversion}": "api/media/responsive",
		"/":                                      "",
	}
	for path, want := range tests {
		if got := getRouteGroup(path); got != want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestGetRoutes(t *testing.T) {
	router := mux.NewRouter()
	noop := func(http.ResponseWriter, *http.Request) {}
	router.HandleFunc("/health", noop).Methods(http.MethodGet).Name("health")
	router.HandleFunc("/api/media/{id}", noop).Methods(http.MethodGet, http.MethodDelete)

	routes, err := GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("got %d routes, want 3: %+v", len(routes), routes)
	}
	if routes[0].Name != "health" || routes[0].Method != http.MethodGet {
		t.Errorf("routes[0] = %+v", routes[0])
	}
}
