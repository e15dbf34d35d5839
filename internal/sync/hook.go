package sync

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"parcelsync/internal/logging"
)

// Hook runs around Apply. The usual use is stopping the service that
// serves the target layer before the write and starting it again after.
// AfterApply runs whenever BeforeApply succeeded, whatever Apply returned.
type Hook interface {
	BeforeApply(ctx context.Context) error
	AfterApply(ctx context.Context) error
}

// NopHook does nothing.
type NopHook struct{}

// BeforeApply implements Hook.
func (NopHook) BeforeApply(context.Context) error { return nil }

// AfterApply implements Hook.
func (NopHook) AfterApply(context.Context) error { return nil }

// CommandHook runs external commands. Each command is split on whitespace;
// no shell is involved.
type CommandHook struct {
	Before []string
	After  []string
}

// BeforeApply implements Hook.
func (h CommandHook) BeforeApply(ctx context.Context) error {
	return runAll(ctx, "before", h.Before)
}

// AfterApply implements Hook.
func (h CommandHook) AfterApply(ctx context.Context) error {
	return runAll(ctx, "after", h.After)
}

func runAll(ctx context.Context, phase string, commands []string) error {
	log := logging.FromContext(ctx)
	for _, c := range commands {
		argv := strings.Fields(c)
		if len(argv) == 0 {
			continue
		}
		var out bytes.Buffer
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stdout = &out
		cmd.Stderr = &out
		err := cmd.Run()
		log.Debug().Str("phase", phase).Str("command", c).Str("output", strings.TrimSpace(out.String())).Msg("hook command")
		if err != nil {
			return fmt.Errorf("%s hook %q: %w: %s", phase, c, err, strings.TrimSpace(out.String()))
		}
	}
	return nil
}
