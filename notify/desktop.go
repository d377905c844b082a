package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/K3das/qin-bridge/messages"
)

const desktopTimeout = time.Second * 5

type DesktopOptions struct {
	// GOOS picks the mechanism, runtime.GOOS if empty.
	GOOS           string
	OsascriptPath  string
	NotifySendPath string
}

// Desktop pops a notification on the machine running the bridge: osascript
// on macOS, notify-send everywhere else.
type Desktop struct {
	goos           string
	osascriptPath  string
	notifySendPath string
}

func NewDesktop(options DesktopOptions) *Desktop {
	d := &Desktop{
		goos:           options.GOOS,
		osascriptPath:  options.OsascriptPath,
		notifySendPath: options.NotifySendPath,
	}
	if d.goos == "" {
		d.goos = runtime.GOOS
	}
	if d.osascriptPath == "" {
		d.osascriptPath = "osascript"
	}
	if d.notifySendPath == "" {
		d.notifySendPath = "notify-send"
	}
	return d
}

func (d *Desktop) command(ctx context.Context, n *messages.Notification) *exec.Cmd {
	if d.goos == "darwin" {
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(n.Body), appleScriptString(n.Title))
		return exec.CommandContext(ctx, d.osascriptPath, "-e", script)
	}
	return exec.CommandContext(ctx, d.notifySendPath, "--", n.Title, n.Body)
}

func (d *Desktop) Notify(ctx context.Context, n *messages.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, desktopTimeout)
	defer cancel()

	cmd := d.command(ctx, n)
	cmd.WaitDelay = time.Second

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("desktop notification: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
