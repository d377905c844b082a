package media

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

var ErrInvalidWav = errors.New("not a valid wav file")

type WavInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	// Duration in seconds
	Duration float64
}

// ReadWavInfo reads the header of a PCM wav file, no external tools needed.
func ReadWavInfo(path string) (*WavInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wav: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, ErrInvalidWav
	}

	duration, err := d.Duration()
	if err != nil {
		return nil, fmt.Errorf("reading wav duration: %w", err)
	}

	return &WavInfo{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Duration:   duration.Seconds(),
	}, nil
}
