package backend

import (
	"context"
	"os"
	"os/exec"
	"time"
)

// defaultCommandTimeout bounds a single command invocation when the caller's
// context carries no deadline of its own. Package manager calls can hang
// indefinitely on an unreachable mirror or an unexpected interactive prompt.
const defaultCommandTimeout = 10 * time.Minute

// ExecRunner executes commands through os/exec with a bounded wait. It
// implements engine.CommandRunner.
type ExecRunner struct {
	// Timeout is the per-invocation deadline applied when the context has
	// none. Zero means defaultCommandTimeout.
	Timeout time.Duration

	// ExtraEnv is appended to the inherited environment for every command.
	ExtraEnv []string
}

// NewExecRunner creates a runner with the given per-command timeout.
func NewExecRunner(timeout time.Duration, extraEnv ...string) *ExecRunner {
	return &ExecRunner{Timeout: timeout, ExtraEnv: extraEnv}
}

// Run executes the command and returns its combined output. The raw error
// is returned unclassified; callers map it onto the engine error taxonomy
// together with the output they asked for.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		timeout := r.Timeout
		if timeout <= 0 {
			timeout = defaultCommandTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), r.ExtraEnv...)
	out, err := cmd.CombinedOutput()
	if err != nil && ctx.Err() != nil {
		// The kill signal error hides the deadline; surface the context
		// error so callers can classify it as a timeout.
		return out, ctx.Err()
	}
	return out, err
}
