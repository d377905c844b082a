package feedback

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

const fileLogTimeFormat = "2006-01-02 15:04:05"

// FileLog appends one line per event to a plain text file.
type FileLog struct {
	mu   sync.Mutex
	path string
}

func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

func FormatLine(e Event) string {
	line := e.At.Format(fileLogTimeFormat) + ": " + strings.ToUpper(e.Action)
	if e.Source == SourceRelay {
		line += " (online)"
	}
	return line + "\n"
}

func (f *FileLog) Record(ctx context.Context, e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening feedback log: %w", err)
	}

	_, err = file.WriteString(FormatLine(e))
	closeErr := file.Close()
	if err != nil {
		return fmt.Errorf("writing feedback log: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("closing feedback log: %w", closeErr)
	}

	return nil
}
