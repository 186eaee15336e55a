package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Per-operation timeouts for the external tools. A hung ffmpeg must never
// hang a stage indefinitely.
const (
	probeTimeout     = 30 * time.Second
	transcodeTimeout = 5 * time.Minute
	concatTimeout    = 2 * time.Minute
)

// quickCheckMinBytes is the smallest size a playable clip can plausibly be.
const quickCheckMinBytes = 100_000

// Tool is the media-tool contract consumed by the animation and assembly
// layers. FFmpeg implements it; tests substitute a fake.
type Tool interface {
	Duration(ctx context.Context, path string) (float64, error)
	Dimensions(ctx context.Context, path string) (width, height int, err error)
	FrameRate(ctx context.Context, path string) (int, error)
	RenderZoomClip(ctx context.Context, imagePath, audioPath, outputPath string, width, height, fps int, duration float64, bitrate string) error
	Concat(ctx context.Context, clipPaths []string, outputPath string) error
	Normalize(ctx context.Context, inputPath, outputPath string, width, height, fps int) error
	ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error
	QuickCheck(path string) bool
}

// FFmpeg invokes the ffmpeg/ffprobe binaries as external processes.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

var _ Tool = (*FFmpeg)(nil)

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{ffmpegPath: "ffmpeg", ffprobePath: "ffprobe"}
}

// Duration returns a file's container duration in seconds.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	out, err := f.probe(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed for %s: %w", path, err)
	}

	durationSec, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", out, err)
	}
	return durationSec, nil
}

// Dimensions returns the width and height of the first video stream.
func (f *FFmpeg) Dimensions(ctx context.Context, path string) (int, int, error) {
	out, err := f.probe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe dimensions failed for %s: %w", path, err)
	}

	parts := strings.Split(strings.TrimSpace(out), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected dimensions output %q", out)
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse width %q: %w", parts[0], err)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse height %q: %w", parts[1], err)
	}
	return width, height, nil
}

// FrameRate returns the rounded average frame rate of the first video stream.
func (f *FFmpeg) FrameRate(ctx context.Context, path string) (int, error) {
	out, err := f.probe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe frame rate failed for %s: %w", path, err)
	}

	fps, err := ParseFrameRate(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("failed to parse frame rate for %s: %w", path, err)
	}
	return fps, nil
}

// ParseFrameRate converts ffprobe's "num/den" rational (e.g. "25/1",
// "30000/1001") into a rounded integer fps.
func ParseFrameRate(rate string) (int, error) {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		f, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed frame rate %q", rate)
		}
		return int(f + 0.5), nil
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed frame rate numerator %q", rate)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("malformed frame rate denominator %q", rate)
	}
	return int(n/d + 0.5), nil
}

// RenderZoomClip renders a scene's base clip: a slow 1.0 -> 1.2 push-in on
// the still image, muxed with the scene audio, at the exact target
// geometry and constant frame rate so the final concat can stream-copy.
func (f *FFmpeg) RenderZoomClip(ctx context.Context, imagePath, audioPath, outputPath string, width, height, fps int, duration float64, bitrate string) error {
	totalFrames := int(duration*float64(fps) + 0.5)
	if totalFrames < fps {
		totalFrames = fps // minimum 1 second
	}
	if bitrate == "" {
		bitrate = "8M"
	}

	// zoompan reads the single input image and emits totalFrames frames,
	// zooming linearly from 1.0 to 1.2 about the center.
	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
			"zoompan=z='1.0+0.2*on/%d':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
		width*2, height*2, width*2, height*2,
		totalFrames, totalFrames, width, height, fps,
	)

	args := []string{
		"-y",
		"-i", imagePath,
		"-i", audioPath,
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", bitrate,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-r", strconv.Itoa(fps),
		"-vsync", "cfr",
		"-shortest",
		outputPath,
	}

	if err := f.run(ctx, transcodeTimeout, args...); err != nil {
		return fmt.Errorf("ffmpeg zoom render failed for %s: %w", imagePath, err)
	}
	return nil
}

// Concat joins clips losslessly via the concat demuxer with stream copy.
// All inputs must already share resolution, frame rate, and codec.
func (f *FFmpeg) Concat(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	listPath, err := WriteConcatList(outputPath, clipPaths)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}

	if err := f.run(ctx, concatTimeout, args...); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}
	return nil
}

// WriteConcatList writes the ffmpeg concat-demuxer file list next to the
// output and returns its path. The list is named after the output so that
// concurrent concats into the same directory never share a list file.
func WriteConcatList(outputPath string, clipPaths []string) (string, error) {
	listPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_list.txt"

	var buf bytes.Buffer
	for _, path := range clipPaths {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		fmt.Fprintf(&buf, "file '%s'\n", abs)
	}

	if err := os.WriteFile(listPath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}
	return listPath, nil
}

// Normalize re-encodes a clip to the exact target geometry and a forced
// constant frame rate: scale preserving aspect, letterbox-pad the rest.
// Required before any animated clip can join a stream-copy concat.
func (f *FFmpeg) Normalize(ctx context.Context, inputPath, outputPath string, width, height, fps int) error {
	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height,
	)

	args := []string{
		"-y",
		"-i", inputPath,
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		"-vsync", "cfr",
		"-avoid_negative_ts", "make_zero",
		"-fflags", "+genpts",
		outputPath,
	}

	if err := f.run(ctx, transcodeTimeout, args...); err != nil {
		return fmt.Errorf("ffmpeg normalize failed for %s: %w", inputPath, err)
	}
	return nil
}

// ReplaceAudio muxes audioPath onto videoPath's video stream, discarding
// whatever audio the video carried. The video stream is copied untouched.
func (f *FFmpeg) ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outputPath,
	}

	if err := f.run(ctx, transcodeTimeout, args...); err != nil {
		return fmt.Errorf("ffmpeg audio replace failed for %s: %w", videoPath, err)
	}
	return nil
}

// QuickCheck reports whether path looks like a playable MP4: non-trivial
// size and an ftyp box near the file head. Cheap enough to call in scan
// loops where a full probe would be too slow.
func (f *FFmpeg) QuickCheck(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() < quickCheckMinBytes {
		return false
	}

	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	head := make([]byte, 12)
	if _, err := file.Read(head); err != nil {
		return false
	}
	return bytes.Contains(head, []byte("ftyp"))
}

func (f *FFmpeg) probe(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (f *FFmpeg) run(ctx context.Context, timeout time.Duration, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w (stderr: %s)", err, lastLines(stderr.String(), 3))
	}
	return nil
}

// lastLines keeps error messages readable: ffmpeg writes pages of stderr
// but the failure reason is in the tail.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
