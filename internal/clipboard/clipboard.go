package clipboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
)

var ErrToolNotFound = errors.New("clipboard tool not found")

type Command struct {
	Path string
	Args []string
}

// candidates lists the clipboard writers tried per platform, in order.
var candidates = map[string][]Command{
	"darwin":  {{Path: "pbcopy"}},
	"linux":   {{Path: "wl-copy"}, {Path: "xclip", Args: []string{"-selection", "clipboard"}}},
	"freebsd": {{Path: "xclip", Args: []string{"-selection", "clipboard"}}},
	"windows": {{Path: "clip.exe"}},
}

func SelectCommand(goos string, lookPath func(string) (string, error)) (Command, error) {
	for _, c := range candidates[goos] {
		path, err := lookPath(c.Path)
		if err != nil {
			continue
		}
		return Command{Path: path, Args: c.Args}, nil
	}
	return Command{}, ErrToolNotFound
}

// Copy writes text to the system clipboard.
func Copy(ctx context.Context, text string) error {
	cmdDef, err := SelectCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	return run(ctx, cmdDef, strings.NewReader(text))
}

// run leaves stdout and stderr unattached: wl-copy forks a server that would
// otherwise keep the pipes open.
func run(ctx context.Context, def Command, input io.Reader) error {
	cmd := exec.CommandContext(ctx, def.Path, def.Args...)
	cmd.Stdin = input
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("clipboard command failed: %w", err)
	}
	return nil
}
