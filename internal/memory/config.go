package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"media-conversions/internal/logging"
)

// DefaultRatio is the share of the container limit given to the Go heap.
// The rest is left for ffmpeg, libvips and the Pebble block cache.
const DefaultRatio = 0.75

// Sources of the configured limit.
const (
	SourceGOMEMLIMIT  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
	SourceNone        = "none"
)

// Limit describes the soft memory limit the process runs with.
type Limit struct {
	Source string
	// Container is the raw MEMORY_LIMIT value in bytes.
	Container int64
	// Bytes is the Go soft memory limit, 0 when unset.
	Bytes int64
	Ratio float64
}

// Configured reports whether a soft limit is in effect.
func (l Limit) Configured() bool {
	return l.Bytes > 0
}

// ConfigureFromEnv derives GOMEMLIMIT from the container limit and applies
// it. It must run before the heavy allocations in main.
//
//   - GOMEMLIMIT wins when set; the runtime has already applied it.
//   - MEMORY_LIMIT is the container limit, in bytes or as a Kubernetes
//     quantity such as 512Mi or 2G.
//   - MEMORY_RATIO overrides DefaultRatio.
func ConfigureFromEnv() Limit {
	limit, err := resolveLimit(os.Getenv, debug.SetMemoryLimit(-1))
	if err != nil {
		logging.Warn("Memory limit not configured: %v", err)
		return Limit{Source: SourceNone}
	}

	switch limit.Source {
	case SourceGOMEMLIMIT:
		logging.Info("GOMEMLIMIT set via environment: %s", formatBytes(limit.Bytes))
	case SourceMemoryLimit:
		debug.SetMemoryLimit(limit.Bytes)
		logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
			formatBytes(limit.Bytes), limit.Ratio*100, formatBytes(limit.Container))
	default:
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT left unconfigured")
	}
	return limit
}

// resolveLimit works out the limit from the environment without touching
// the runtime. current is the limit the runtime already has.
func resolveLimit(getenv func(string) string, current int64) (Limit, error) {
	if getenv("GOMEMLIMIT") != "" {
		l := Limit{Source: SourceGOMEMLIMIT}
		if current > 0 && current < math.MaxInt64 {
			l.Bytes = current
		}
		return l, nil
	}

	raw := getenv("MEMORY_LIMIT")
	if raw == "" {
		return Limit{Source: SourceNone}, nil
	}
	container, err := parseQuantity(raw)
	if err != nil {
		return Limit{}, fmt.Errorf("MEMORY_LIMIT: %w", err)
	}

	ratio := DefaultRatio
	if s := getenv("MEMORY_RATIO"); s != "" {
		r, err := strconv.ParseFloat(s, 64)
		switch {
		case err != nil:
			logging.Warn("Invalid MEMORY_RATIO %q, using %.2f", s, DefaultRatio)
		case r <= 0 || r > 1:
			logging.Warn("MEMORY_RATIO %q out of range (0-1], using %.2f", s, DefaultRatio)
		default:
			ratio = r
		}
	}

	return Limit{
		Source:    SourceMemoryLimit,
		Container: container,
		Bytes:     int64(float64(container) * ratio),
		Ratio:     ratio,
	}, nil
}

var quantitySuffixes = []struct {
	suffix string
	mult   int64
}{
	{"Ki", 1 << 10}, {"Mi", 1 << 20}, {"Gi", 1 << 30}, {"Ti", 1 << 40},
	{"K", 1e3}, {"k", 1e3}, {"M", 1e6}, {"G", 1e9}, {"T", 1e12},
}

// parseQuantity parses a byte count with an optional Kubernetes suffix.
func parseQuantity(s string) (int64, error) {
	s = strings.TrimSpace(s)
	mult := int64(1)
	for _, q := range quantitySuffixes {
		if strings.HasSuffix(s, q.suffix) {
			s, mult = strings.TrimSuffix(s, q.suffix), q.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	if n <= 0 || n > math.MaxInt64/mult {
		return 0, fmt.Errorf("quantity %q out of range", s)
	}
	return n * mult, nil
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
