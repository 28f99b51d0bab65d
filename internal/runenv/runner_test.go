package runenv

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestRedact(t *testing.T) {
	got := Redact("token=abc123 and abc123", map[string]string{"TOKEN": "abc123", "EMPTY": ""})
	if got != "token=[REDACTED:TOKEN] and [REDACTED:TOKEN]" {
		t.Errorf("Redact() = %q", got)
	}
}

func TestRedactingWriter(t *testing.T) {
	secrets := map[string]string{"TOKEN": "supersecret"}

	t.Run("secret split across writes", func(t *testing.T) {
		var out bytes.Buffer
		w := newRedactingWriter(&out, secrets)
		for _, chunk := range []string{"value=super", "secret\n"} {
			if _, err := w.Write([]byte(chunk)); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
		if out.String() != "value=[REDACTED:TOKEN]\n" {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("one byte at a time", func(t *testing.T) {
		var out bytes.Buffer
		w := newRedactingWriter(&out, secrets)
		for _, b := range []byte("a supersecret b") {
			if _, err := w.Write([]byte{b}); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
		}
		_ = w.Flush()
		if out.String() != "a [REDACTED:TOKEN] b" {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("held prefix flushed when it is not a secret", func(t *testing.T) {
		var out bytes.Buffer
		w := newRedactingWriter(&out, secrets)
		if _, err := w.Write([]byte("almost super")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if out.String() != "almost " {
			t.Errorf("output before flush = %q, want the prefix held back", out.String())
		}
		_ = w.Flush()
		if out.String() != "almost super" {
			t.Errorf("output = %q", out.String())
		}
	})
}

func TestBuildCommandEnv(t *testing.T) {
	t.Setenv("CRYPTOENV_TEST_INHERITED", "old")

	env := BuildCommandEnv(MapEnv{"CRYPTOENV_TEST_INHERITED": "new"})

	last := ""
	for _, e := range env {
		if strings.HasPrefix(e, "CRYPTOENV_TEST_INHERITED=") {
			last = e
		}
	}
	if last != "CRYPTOENV_TEST_INHERITED=new" {
		t.Errorf("last entry = %q, want override to come last", last)
	}
}

func TestProcessRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on Windows due to command differences")
	}

	t.Run("passes decrypted env", func(t *testing.T) {
		var out bytes.Buffer
		r := &ProcessRunner{
			Command: "sh",
			Args:    []string{"-c", "printf %s \"$MY_SECRET\""},
			Env:     MapEnv{"MY_SECRET": "s3cr3t"},
			Stdout:  &out,
		}

		code, err := r.Run()
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if code != 0 {
			t.Errorf("exit code = %d", code)
		}
		if out.String() != "s3cr3t" {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("redacts output", func(t *testing.T) {
		var out bytes.Buffer
		r := &ProcessRunner{
			Command: "sh",
			Args:    []string{"-c", "printf %s \"$MY_SECRET\""},
			Env:     MapEnv{"MY_SECRET": "s3cr3t"},
			Secrets: map[string]string{"MY_SECRET": "s3cr3t"},
			Stdout:  &out,
		}

		if _, err := r.Run(); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if out.String() != "[REDACTED:MY_SECRET]" {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("reports exit code", func(t *testing.T) {
		r := &ProcessRunner{Command: "sh", Args: []string{"-c", "exit 3"}}
		code, err := r.Run()
		if err == nil {
			t.Error("Run() should return the exit error")
		}
		if code != 3 {
			t.Errorf("exit code = %d, want 3", code)
		}
	})

	t.Run("missing command", func(t *testing.T) {
		r := &ProcessRunner{Command: "cryptoenv-definitely-missing-binary"}
		code, err := r.Run()
		if err == nil || code != -1 {
			t.Errorf("Run() = (%d, %v), want (-1, error)", code, err)
		}
	})

	t.Run("stop terminates the process", func(t *testing.T) {
		r := &ProcessRunner{Command: "sleep", Args: []string{"30"}, NewGroup: true}
		if err := r.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if !r.Running() {
			t.Fatal("Running() = false after Start()")
		}

		start := time.Now()
		_ = r.Stop()
		if r.Running() {
			t.Error("Running() = true after Stop()")
		}
		if time.Since(start) > 4*time.Second {
			t.Error("Stop() took too long")
		}
	})

	t.Run("wait before start", func(t *testing.T) {
		r := &ProcessRunner{}
		if err := r.Wait(); err == nil {
			t.Error("Wait() should fail before Start()")
		}
		if r.Running() {
			t.Error("Running() = true before Start()")
		}
		if r.ExitCode() != -1 {
			t.Errorf("ExitCode() = %d, want -1", r.ExitCode())
		}
		if err := r.Stop(); err != nil {
			t.Errorf("Stop() before Start() = %v", err)
		}
	})
}
