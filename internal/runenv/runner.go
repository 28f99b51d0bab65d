package runenv

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const stopTimeout = 5 * time.Second

// BuildCommandEnv appends vars to the current process environment. Later
// entries win, so vars override inherited values.
func BuildCommandEnv(vars MapEnv) []string {
	return append(os.Environ(), vars.Environ()...)
}

// Redact replaces every non-empty secret value in data with [REDACTED:NAME].
func Redact(data string, secrets map[string]string) string {
	for name, value := range secrets {
		if value != "" {
			data = strings.ReplaceAll(data, value, fmt.Sprintf("[REDACTED:%s]", name))
		}
	}
	return data
}

// redactingWriter redacts secrets from a stream. Output that could be the
// start of a secret is held back until the next Write or Flush, so a secret
// split across two writes is still caught.
type redactingWriter struct {
	dst     io.Writer
	secrets map[string]string
	pending string
}

func newRedactingWriter(dst io.Writer, secrets map[string]string) *redactingWriter {
	return &redactingWriter{dst: dst, secrets: secrets}
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	data := Redact(w.pending+string(p), w.secrets)
	cut := w.holdFrom(data)
	w.pending = data[cut:]
	if _, err := io.WriteString(w.dst, data[:cut]); err != nil {
		return 0, err
	}
	return len(p), nil
}

// holdFrom returns the offset of the earliest suffix of data that is a
// proper prefix of a secret.
func (w *redactingWriter) holdFrom(data string) int {
	longest := 0
	for _, v := range w.secrets {
		longest = max(longest, len(v))
	}
	start := max(0, len(data)-longest+1)
	for i := start; i < len(data); i++ {
		tail := data[i:]
		for _, v := range w.secrets {
			if len(tail) < len(v) && strings.HasPrefix(v, tail) {
				return i
			}
		}
	}
	return len(data)
}

// Flush writes whatever is held back.
func (w *redactingWriter) Flush() error {
	if w.pending == "" {
		return nil
	}
	_, err := io.WriteString(w.dst, w.pending)
	w.pending = ""
	return err
}

func exitCodeFromError(runErr error) (int, error) {
	if runErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitCode(), runErr
	}
	return -1, fmt.Errorf("failed to run command: %w", runErr)
}

// ProcessRunner runs a command with extra environment variables and can
// stop and restart it.
type ProcessRunner struct {
	Command string
	Args    []string
	Env     MapEnv
	// Secrets, when set, are redacted from the command output.
	Secrets map[string]string
	Stdout  io.Writer
	Stderr  io.Writer
	// NewGroup starts the command in its own process group so Stop can
	// signal everything it spawned.
	NewGroup bool

	cmd      *exec.Cmd
	done     chan struct{}
	waitErr  error
	flushers []*redactingWriter
}

func (r *ProcessRunner) output(w, fallback io.Writer) io.Writer {
	if w == nil {
		w = fallback
	}
	if len(r.Secrets) > 0 {
		rw := newRedactingWriter(w, r.Secrets)
		r.flushers = append(r.flushers, rw)
		return rw
	}
	return w
}

func (r *ProcessRunner) Start() error {
	r.flushers = nil
	cmd := exec.Command(r.Command, r.Args...)
	cmd.Env = BuildCommandEnv(r.Env)
	cmd.Stdin = os.Stdin
	cmd.Stdout = r.output(r.Stdout, os.Stdout)
	cmd.Stderr = r.output(r.Stderr, os.Stderr)
	if r.NewGroup {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	flushers := r.flushers
	r.cmd = cmd
	r.done = done
	go func() {
		r.waitErr = cmd.Wait()
		for _, f := range flushers {
			_ = f.Flush()
		}
		close(done)
	}()
	return nil
}

// Run starts the command and waits for it. The exit code is -1 when the
// command could not be run at all.
func (r *ProcessRunner) Run() (int, error) {
	if err := r.Start(); err != nil {
		return -1, fmt.Errorf("failed to run command: %w", err)
	}
	return exitCodeFromError(r.Wait())
}

// Done is closed when the current process exits.
func (r *ProcessRunner) Done() <-chan struct{} {
	return r.done
}

func (r *ProcessRunner) Wait() error {
	if r.done == nil {
		return fmt.Errorf("process not started")
	}
	<-r.done
	return r.waitErr
}

// Stop sends SIGTERM to the process (or its group) and escalates to SIGKILL
// after a grace period.
func (r *ProcessRunner) Stop() error {
	if !r.Running() {
		return nil
	}

	target := r.cmd.Process.Pid
	if r.NewGroup {
		if pgid, err := syscall.Getpgid(target); err == nil {
			target = -pgid
		}
	}
	if err := syscall.Kill(target, syscall.SIGTERM); err != nil {
		_ = r.cmd.Process.Kill()
		<-r.done
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-time.After(stopTimeout):
		_ = syscall.Kill(target, syscall.SIGKILL)
		<-r.done
		return fmt.Errorf("process did not exit gracefully, killed")
	}
}

func (r *ProcessRunner) ExitCode() int {
	if r.cmd == nil || r.cmd.ProcessState == nil {
		return -1
	}
	return r.cmd.ProcessState.ExitCode()
}

func (r *ProcessRunner) Running() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}
