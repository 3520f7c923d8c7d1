package wav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrFFmpegUnavailable is returned when a conversion needs ffmpeg but no binary is on PATH.
var ErrFFmpegUnavailable = errors.New("ffmpeg not found in PATH")

// CheckFFmpegAvailable reports whether ffmpeg can be executed.
func CheckFFmpegAvailable() error {
	if _, err := exec.LookPath(ffmpegBin()); err != nil {
		return fmt.Errorf("%w: install ffmpeg to decode mp3, m4a, flac and ogg uploads", ErrFFmpegUnavailable)
	}
	return nil
}

// ConvertToWAV transcodes any container ffmpeg understands into 16-bit PCM WAV
// with the requested channel count, keeping the native sample rate. The
// converted file is written next to the input and its path returned; the
// caller owns its removal.
func ConvertToWAV(ctx context.Context, inputPath string, channels int) (string, error) {
	if err := CheckFFmpegAvailable(); err != nil {
		return "", err
	}
	if channels <= 0 {
		channels = 1
	}

	ext := filepath.Ext(inputPath)
	outputPath := strings.TrimSuffix(inputPath, ext) + "_pcm.wav"

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", inputPath,
		"-vn",
		"-ac", strconv.Itoa(channels),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		outputPath,
	}
	if out, err := runCmd(ctx, ffmpegBin(), args...); err != nil {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg conversion failed: %v: %s", err, strings.TrimSpace(out))
	}

	return outputPath, nil
}

// ProbeInfo is the subset of ffprobe output used for source diagnostics.
type ProbeInfo struct {
	FormatName string  `json:"formatName"`
	CodecName  string  `json:"codecName"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
}

// Probe runs ffprobe against path and returns the first audio stream's properties.
func Probe(ctx context.Context, path string) (ProbeInfo, error) {
	if _, err := exec.LookPath(ffprobeBin()); err != nil {
		return ProbeInfo{}, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, ffprobeBin(), "-v", "error", "-show_format", "-show_streams", "-of", "json", path)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	out, err := cmd.Output()
	if err != nil {
		return ProbeInfo{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeOutput(out)
}

func parseProbeOutput(out []byte) (ProbeInfo, error) {
	var ff struct {
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &ff); err != nil {
		return ProbeInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := ProbeInfo{
		FormatName: ff.Format.FormatName,
		Duration:   parseFloat(ff.Format.Duration),
	}
	for _, s := range ff.Streams {
		if s.CodecType != "audio" {
			continue
		}
		info.CodecName = s.CodecName
		info.SampleRate = parseInt(s.SampleRate)
		info.Channels = s.Channels
		return info, nil
	}
	return info, errors.New("no audio stream found")
}

func runCmd(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func ffmpegBin() string {
	if bin := os.Getenv("FFMPEG_BIN"); bin != "" {
		return bin
	}
	return "ffmpeg"
}

func ffprobeBin() string {
	if bin := os.Getenv("FFPROBE_BIN"); bin != "" {
		return bin
	}
	return "ffprobe"
}

func parseInt(s string) int       { i, _ := strconv.Atoi(strings.TrimSpace(s)); return i }
func parseFloat(s string) float64 { f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64); return f }
