package asr

import (
	"context"
	"errors"
)

// Placeholder is returned as the transcript when nothing could be recognized.
const Placeholder = "(Could not transcribe)"

// Recognizer runs speech-to-text on an audio file. Tools that write their
// result to disk should put it in outputDir, which is removed after the job.
//
// Implementations return whatever output they collected even when they also
// return an error.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath, outputDir string) (*RecognizerOutput, error)
}

type RecognizerOutput struct {
	// Artifact is the content of the text file written by the tool, if any.
	Artifact string
	// Output is what the tool returned directly (stdout or API response).
	Output    string
	ModelName string
}

type Source string

const (
	SourceArtifact    Source = "artifact"
	SourceOutput      Source = "output"
	SourcePlaceholder Source = "placeholder"
)

type Transcript struct {
	Text      string
	ModelName string
	Source    Source
	// Duration of the input audio in seconds, zero when unknown.
	Duration float64
}

var (
	ErrNoAudio       = errors.New("no audio data")
	ErrAudioTooLarge = errors.New("audio too large")
)

// TranscriptionError means the job could not be staged at all. Recognition
// failures never produce one; they end in the placeholder transcript.
type TranscriptionError struct {
	Message string
	Err     error
}

func (err *TranscriptionError) Error() string {
	if err.Err == nil {
		return err.Message
	}
	return err.Message + ": " + err.Err.Error()
}

func (err *TranscriptionError) Unwrap() error {
	return err.Err
}
