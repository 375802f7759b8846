package services

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const (
	gifMaxDuration = 10  // seconds
	gifMaxWidth    = 480 // pixels
	gifFPS         = 10
)

// FFmpegService runs image and video conversions through the ffmpeg
// binary. A missing binary surfaces as a converter failure on the
// first invocation, never at construction.
type FFmpegService struct {
	bin string
}

func NewFFmpegService(bin string) *FFmpegService {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegService{bin: bin}
}

// ConvertImage re-encodes an image into the target format.
func (f *FFmpegService) ConvertImage(ctx context.Context, sourcePath string, targetFormat string) (string, error) {
	outputPath := tempOutputPath(sourcePath, targetFormat)

	args := []string{"-y", "-i", sourcePath}
	if isJPEG(targetFormat) {
		// JPEG has no alpha channel; flatten onto white.
		args = append(args, "-vf", "format=rgb24", "-q:v", "2")
	}
	args = append(args, outputPath)

	if err := f.run(ctx, args); err != nil {
		return "", err
	}
	return outputPath, nil
}

// ConvertVideo transcodes a video container/codec to the target format.
func (f *FFmpegService) ConvertVideo(ctx context.Context, sourcePath string, targetFormat string) (string, error) {
	outputPath := tempOutputPath(sourcePath, targetFormat)

	args := []string{"-y", "-i", sourcePath}
	if strings.ToLower(targetFormat) == "mp4" {
		args = append(args, "-c:v", "libx264", "-c:a", "aac")
	}
	args = append(args, outputPath)

	if err := f.run(ctx, args); err != nil {
		return "", err
	}
	return outputPath, nil
}

// ConvertVideoToGIF clips the first seconds of a video into a bounded
// GIF (duration, width and frame rate capped to keep output sane).
func (f *FFmpegService) ConvertVideoToGIF(ctx context.Context, sourcePath string, targetFormat string) (string, error) {
	outputPath := tempOutputPath(sourcePath, "gif")

	args := []string{
		"-y",
		"-t", fmt.Sprintf("%d", gifMaxDuration),
		"-i", sourcePath,
		"-vf", fmt.Sprintf("fps=%d,scale='min(%d,iw)':-1:flags=lanczos", gifFPS, gifMaxWidth),
		outputPath,
	}

	if err := f.run(ctx, args); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (f *FFmpegService) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg canceled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(out))
	}
	return nil
}

func isJPEG(format string) bool {
	f := strings.ToLower(format)
	return f == "jpg" || f == "jpeg"
}

// lastLine trims ffmpeg's chatter down to the line that usually names
// the actual problem.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
