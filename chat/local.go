package chat

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/K3das/qin-bridge/utils"
	"go.uber.org/zap"
)

// NoResponse is the reply when the local CLI printed nothing at all.
const NoResponse = "no response"

const maxCLIOutput = 1024 * 256

type LocalCLIOptions struct {
	Binary    string        `env:"CLI_BINARY" envDefault:"clawdbot"`
	SessionID string        `env:"CLI_SESSION_ID" envDefault:"qin"`
	Timeout   time.Duration `env:"CLI_TIMEOUT" envDefault:"120s"`
}

// LocalCLI runs the backend's command line client on this machine.
type LocalCLI struct {
	log *zap.Logger

	binary    string
	sessionID string
	timeout   time.Duration
}

func NewLocalCLI(parentLogger *zap.Logger, options LocalCLIOptions) *LocalCLI {
	l := &LocalCLI{
		log:       parentLogger.Named("local_cli"),
		binary:    options.Binary,
		sessionID: options.SessionID,
		timeout:   options.Timeout,
	}
	if l.binary == "" {
		l.binary = "clawdbot"
	}
	if l.sessionID == "" {
		l.sessionID = "qin"
	}
	if l.timeout <= 0 {
		l.timeout = 120 * time.Second
	}
	return l
}

// Complete returns stdout, or stderr when stdout is empty, or NoResponse. A
// non-zero exit is not an error as long as the process ran to completion.
func (l *LocalCLI) Complete(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.binary, "agent", "--message", text, "--session-id", l.sessionID)
	cmd.WaitDelay = time.Second * 2

	stdout := &utils.LimitedBuffer{Limit: maxCLIOutput}
	stderr := &utils.LimitedBuffer{Limit: maxCLIOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", fmt.Errorf("timed out after %s", l.timeout)
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", err
	}

	if stdout.Truncated() || stderr.Truncated() {
		utils.GetLogFromContext(ctx, l.log).Warn("cli output truncated",
			zap.Int("limit", maxCLIOutput),
			zap.Bool("stdout", stdout.Truncated()),
			zap.Bool("stderr", stderr.Truncated()),
		)
	}

	if out := strings.TrimSpace(stdout.String()); out != "" {
		return out, nil
	}
	if out := strings.TrimSpace(stderr.String()); out != "" {
		return out, nil
	}

	return NoResponse, nil
}
