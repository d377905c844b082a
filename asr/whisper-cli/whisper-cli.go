package whispercli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/K3das/qin-bridge/asr"
	"github.com/K3das/qin-bridge/utils"
	"go.uber.org/zap"
)

// used for the model name in logs and metrics
const modelPrefix = "whisper_cli-"

const maxStdoutSize = 1024 * 64

type Options struct {
	Binary   string `env:"BINARY" envDefault:"whisper"`
	Model    string `env:"MODEL" envDefault:"tiny"`
	Language string `env:"LANGUAGE"`
}

// Recognizer runs the openai-whisper command line tool.
type Recognizer struct {
	log *zap.Logger

	binary   string
	model    string
	language string
}

func NewRecognizer(parentLogger *zap.Logger, options Options) *Recognizer {
	r := &Recognizer{
		log:      parentLogger.Named("whisper_cli"),
		binary:   options.Binary,
		model:    options.Model,
		language: options.Language,
	}
	if r.binary == "" {
		r.binary = "whisper"
	}
	if r.model == "" {
		r.model = "tiny"
	}
	return r
}

// ArtifactPath is where whisper writes the txt transcript for audioPath.
func ArtifactPath(audioPath, outputDir string) string {
	base := filepath.Base(audioPath)
	return filepath.Join(outputDir, strings.TrimSuffix(base, filepath.Ext(base))+".txt")
}

func (r *Recognizer) Recognize(ctx context.Context, audioPath, outputDir string) (*asr.RecognizerOutput, error) {
	args := []string{
		audioPath,
		"--model", r.model,
		"--output_format", "txt",
		"--output_dir", outputDir,
	}
	if r.language != "" {
		args = append(args, "--language", r.language)
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.WaitDelay = time.Second * 2

	stdout := &utils.LimitedBuffer{Limit: maxStdoutSize}
	stderr := &utils.LimitedBuffer{Limit: 1024}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	if stdout.Truncated() {
		utils.GetLogFromContext(ctx, r.log).Warn("whisper stdout truncated", zap.Int("limit", maxStdoutSize))
	}

	output := &asr.RecognizerOutput{
		Output:    stdout.String(),
		ModelName: modelPrefix + r.model,
	}

	// whisper may have written the file before failing
	artifact, err := os.ReadFile(ArtifactPath(audioPath, outputDir))
	if err == nil {
		output.Artifact = string(artifact)
	}

	if runErr != nil {
		return output, fmt.Errorf("running whisper: %w (%s)", runErr, strings.TrimSpace(stderr.String()))
	}

	return output, nil
}
