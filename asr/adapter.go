package asr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/K3das/qin-bridge/media"
	"github.com/K3das/qin-bridge/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TargetSampleRate = 16000
	TargetChannels   = 1

	DefaultResampleTimeout  = time.Second * 30
	DefaultRecognizeTimeout = time.Second * 60
	DefaultMaxAudioSize     = 1024 * 1024 * 10

	// handset recordings are 3gp; ffmpeg sniffs the real format anyway
	stagedAudioExt = ".3gp"
)

// AudioTools is satisfied by *media.FFmpeg.
type AudioTools interface {
	FFmpegResampleToFile(ctx context.Context, inputPath, outputPath string, sampleRate, channels int) error
	FFprobeDurationFromFile(ctx context.Context, filePath string) (float64, error)
}

type AdapterOptions struct {
	ParentLogger *zap.Logger
	Recognizer   Recognizer
	Tools        AudioTools

	// StagingDir is where per-job directories are created, os.TempDir() if empty.
	StagingDir       string
	MaxAudioSize     int64
	ResampleTimeout  time.Duration
	RecognizeTimeout time.Duration
	ProbeDuration    bool
}

// Adapter turns raw handset audio into text. Every job gets its own staging
// directory that is removed when the job ends.
type Adapter struct {
	log *zap.Logger

	recognizer Recognizer
	tools      AudioTools

	stagingDir       string
	maxAudioSize     int64
	resampleTimeout  time.Duration
	recognizeTimeout time.Duration
	probeDuration    bool
}

func NewAdapter(options AdapterOptions) *Adapter {
	a := &Adapter{
		log:              options.ParentLogger.Named("asr"),
		recognizer:       options.Recognizer,
		tools:            options.Tools,
		stagingDir:       options.StagingDir,
		maxAudioSize:     options.MaxAudioSize,
		resampleTimeout:  options.ResampleTimeout,
		recognizeTimeout: options.RecognizeTimeout,
		probeDuration:    options.ProbeDuration,
	}

	if a.stagingDir == "" {
		a.stagingDir = os.TempDir()
	}
	if a.maxAudioSize <= 0 {
		a.maxAudioSize = DefaultMaxAudioSize
	}
	if a.resampleTimeout <= 0 {
		a.resampleTimeout = DefaultResampleTimeout
	}
	if a.recognizeTimeout <= 0 {
		a.recognizeTimeout = DefaultRecognizeTimeout
	}

	return a
}

type job struct {
	id        string
	dir       string
	audioPath string
}

// stage writes the audio into a fresh directory. On error nothing is left
// behind.
func (a *Adapter) stage(audio []byte) (*job, error) {
	id := uuid.NewString()
	dir := filepath.Join(a.stagingDir, "qin-"+id)

	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating staging dir: %w", err)
	}

	j := &job{
		id:        id,
		dir:       dir,
		audioPath: filepath.Join(dir, "audio-"+id+stagedAudioExt),
	}

	f, err := os.OpenFile(j.audioPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("creating staging file: %w", err)
	}

	_, err = utils.CopyLimit(f, bytes.NewReader(audio), a.maxAudioSize)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	return j, nil
}

func (a *Adapter) cleanup(log *zap.Logger, j *job) {
	if err := os.RemoveAll(j.dir); err != nil {
		log.Warn("failed to remove staging dir", zap.String("dir", j.dir), zap.Error(err))
	}
}

// Transcribe returns the best transcript it can get for audio. Resampling and
// recognition failures are absorbed: the result falls back to the original
// audio and finally to Placeholder. Only staging problems return an error,
// always a *TranscriptionError.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte) (*Transcript, error) {
	if len(audio) == 0 {
		return nil, &TranscriptionError{Message: "nothing to transcribe", Err: ErrNoAudio}
	}

	j, err := a.stage(audio)
	if errors.Is(err, utils.ErrIOLimitReached) {
		return nil, &TranscriptionError{Message: "staging audio", Err: ErrAudioTooLarge}
	} else if err != nil {
		return nil, &TranscriptionError{Message: "staging audio", Err: err}
	}

	ctx, log := utils.LogContextWith(ctx, a.log, zap.String("job_id", j.id))
	defer a.cleanup(log, j)

	log.Debug("staged audio", zap.Int("bytes", len(audio)))

	transcript := &Transcript{}

	if a.probeDuration {
		duration, err := a.tools.FFprobeDurationFromFile(ctx, j.audioPath)
		if err != nil {
			log.Debug("could not probe duration", zap.Error(err))
		} else {
			transcript.Duration = duration
		}
	}

	input := a.resample(ctx, log, j)

	if transcript.Duration == 0 && input != j.audioPath {
		if info, err := media.ReadWavInfo(input); err != nil {
			log.Debug("could not read resampled wav", zap.Error(err))
		} else {
			transcript.Duration = info.Duration
		}
	}

	recognizeCtx, cancel := context.WithTimeout(ctx, a.recognizeTimeout)
	defer cancel()

	output, err := a.recognizer.Recognize(recognizeCtx, input, j.dir)
	if err != nil {
		log.Warn("recognizer failed", zap.Error(err))
	}

	transcript.Text, transcript.Source = pickTranscript(output)
	if output != nil {
		transcript.ModelName = output.ModelName
	}

	log.Info("transcribed",
		zap.String("source", string(transcript.Source)),
		zap.Int("chars", len(transcript.Text)),
	)

	return transcript, nil
}

// resample converts the staged audio to 16kHz mono and returns the path to
// recognize, which is the original file if resampling did not work.
func (a *Adapter) resample(ctx context.Context, log *zap.Logger, j *job) string {
	ctx, cancel := context.WithTimeout(ctx, a.resampleTimeout)
	defer cancel()

	wavPath := strings.TrimSuffix(j.audioPath, stagedAudioExt) + ".wav"

	err := a.tools.FFmpegResampleToFile(ctx, j.audioPath, wavPath, TargetSampleRate, TargetChannels)
	if err != nil {
		log.Warn("resampling failed, using original audio", zap.Error(err))
		return j.audioPath
	}

	return wavPath
}

func pickTranscript(output *RecognizerOutput) (string, Source) {
	if output == nil {
		return Placeholder, SourcePlaceholder
	}

	if text := strings.TrimSpace(output.Artifact); text != "" {
		return text, SourceArtifact
	}
	if text := strings.TrimSpace(output.Output); text != "" {
		return text, SourceOutput
	}

	return Placeholder, SourcePlaceholder
}
