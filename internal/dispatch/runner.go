package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ProjectDirEnv is set in every hook process's environment, pointing at
// the working project directory.
const ProjectDirEnv = "AGENTRUN_PROJECT_DIR"

// Sentinel exit codes synthesized by the runner. Both are outside the
// range a child process can report, so they never collide with the
// exit-code-2 block convention.
const (
	// ExitStartFailure marks a command that could not be started
	// (binary not found, permission denied).
	ExitStartFailure = -1

	// ExitTimeout marks a command that was killed after exceeding its
	// lifetime bound.
	ExitTimeout = -2
)

// ExitBlock is the exit code a hook uses to force a block, independent
// of anything it printed.
const ExitBlock = 2

// waitGrace bounds how long Wait may hold the output pipes open after
// the shell's process group is gone. A hook child that re-parents into
// its own session keeps the pipes alive; past this grace they are
// abandoned so the dispatch loop can proceed.
const waitGrace = time.Second

// Invocation is the captured outcome of one hook process run. It is
// consumed immediately by the dispatcher and discarded.
type Invocation struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// TimedOut reports whether the process was killed at its deadline.
func (inv *Invocation) TimedOut() bool {
	return inv.ExitCode == ExitTimeout
}

// runCommand executes one hook command through the shell with the JSON
// payload on stdin and a bounded lifetime. It never returns an error:
// start failures and timeouts are folded into the Invocation with
// sentinel exit codes so the dispatch loop can proceed.
func runCommand(ctx context.Context, command string, payload []byte, timeout time.Duration, projectDir string) *Invocation {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Env = append(os.Environ(), ProjectDirEnv+"="+projectDir)
	cmd.Stdin = bytes.NewReader(payload)

	// The shell runs in its own process group and the whole group is
	// killed at the deadline: a hook that backgrounds a child would
	// otherwise outlive its lifetime bound and hold the output pipes,
	// stalling Wait far past the timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return nil
		}
		return err
	}
	cmd.WaitDelay = waitGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &Invocation{
			Stderr:   err.Error(),
			ExitCode: ExitStartFailure,
		}
	}

	err := cmd.Wait()

	inv := &Invocation{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		// Partial output captured before the kill is still interpreted
		// by the dispatcher; the timeout itself is non-blocking.
		inv.ExitCode = ExitTimeout
		if inv.Stderr != "" {
			inv.Stderr += "\n"
		}
		inv.Stderr += fmt.Sprintf("hook timed out after %s", timeout)
	case err == nil || errors.Is(err, exec.ErrWaitDelay):
		// ErrWaitDelay means the hook itself exited cleanly and only a
		// lingering child kept the pipes open past the grace.
		inv.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			inv.ExitCode = exitErr.ExitCode()
		} else {
			inv.ExitCode = ExitStartFailure
			if inv.Stderr != "" {
				inv.Stderr += "\n"
			}
			inv.Stderr += err.Error()
		}
	}

	return inv
}
