package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// FFmpegResampleToFile resamples inputPath to a wav file at outputPath with the
// given sample rate and channel count. An empty output counts as a failure.
func (f *FFmpeg) FFmpegResampleToFile(ctx context.Context, inputPath, outputPath string, sampleRate, channels int) error {
	ctx, cancel := context.WithTimeout(ctx, f.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx,
		f.ffmpegBinary,
		"-y",
		"-i", inputPath,
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		outputPath,
	)
	cmd.WaitDelay = waitDelay

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("running ffmpeg: %w (%s)", err, tail(output, 200))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("checking output: %w", err)
	}
	if info.Size() == 0 {
		return ErrEmptyOutput
	}

	return nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
