package generator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"media-conversions/internal/conversion"
	"media-conversions/internal/logging"
	"media-conversions/internal/metrics"
)

// Video extracts a single frame from a video source with ffmpeg.
type Video struct {
	ffmpegPath  string
	ffprobePath string

	once      sync.Once
	installed bool
}

// NewVideo returns a Video generator using the given binaries. Empty
// paths fall back to "ffmpeg" and "ffprobe" on PATH.
func NewVideo(ffmpegPath, ffprobePath string) *Video {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Video{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

func (v *Video) Type() string { return "video" }

func (v *Video) SupportedExtensions() []string {
	return []string{"webm", "mov", "mp4"}
}

func (v *Video) SupportedMimeTypes() []string {
	return []string{"video/webm", "video/mpeg", "video/mp4", "video/quicktime"}
}

// RequirementsInstalled checks for ffmpeg and ffprobe once.
func (v *Video) RequirementsInstalled() bool {
	v.once.Do(func() {
		_, errMpeg := exec.LookPath(v.ffmpegPath)
		_, errProbe := exec.LookPath(v.ffprobePath)
		v.installed = errMpeg == nil && errProbe == nil
		if !v.installed {
			logging.Warn("Video conversions disabled: ffmpeg=%v ffprobe=%v", errMpeg, errProbe)
		}
	})
	return v.installed
}

// Convert writes a JPEG of the frame at conv.FrameSecond() next to the
// source, falling back to the first frame when the video is shorter.
func (v *Video) Convert(ctx context.Context, sourcePath string, conv *conversion.Conversion) (string, error) {
	duration, err := v.Duration(ctx, sourcePath)
	if err != nil {
		logging.Debug("Could not read duration of %s, using first frame: %v", sourcePath, err)
		duration = 0
	}
	second := clampFrameSecond(conv.FrameSecond(), duration)

	out := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + ".jpg"
	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(second, 'f', 3, 64),
		"-i", sourcePath,
		"-frames:v", "1",
		"-q:v", "2",
		out,
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, v.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err = cmd.Run()
	metrics.ExternalProcessDuration.WithLabelValues("ffmpeg").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderr.String())
	}

	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return "", fmt.Errorf("ffmpeg produced no output for %s", sourcePath)
	}
	return out, nil
}

// Duration returns the container duration of a video in seconds.
func (v *Video) Duration(ctx context.Context, path string) (float64, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, v.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	metrics.ExternalProcessDuration.WithLabelValues("ffprobe").Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}

	return parseDuration(stdout.String())
}

func parseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("no duration reported")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return d, nil
}

// clampFrameSecond returns second, or 0 when it is negative or past the
// end of a video lasting duration seconds.
func clampFrameSecond(second, duration float64) float64 {
	if second < 0 || second > duration {
		return 0
	}
	return second
}
