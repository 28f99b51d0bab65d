package keys

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xmazu/cryptoenv/internal/crypto"
	"github.com/xmazu/cryptoenv/internal/envfile"
	"github.com/xmazu/cryptoenv/internal/logger"
)

const password = "pass1234"

func newManager(t *testing.T, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
	}

	m, err := New(Options{Path: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return string(data)
}

func seeded(t *testing.T) *Manager {
	t.Helper()
	m := newManager(t, "NODE_ENV=test\n")
	if err := m.AddKey("myKey", "secret1", password, AddOptions{}); err != nil {
		t.Fatalf("AddKey() error = %v", err)
	}
	return m
}

func TestNew(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() should require a path")
	}

	m, err := New(Options{Path: ".env"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.Prefix() != envfile.DefaultPrefix {
		t.Errorf("Prefix() = %q, want default", m.Prefix())
	}
}

func TestExists(t *testing.T) {
	m := newManager(t, "")
	if m.Exists() {
		t.Error("Exists() = true before the first key")
	}
	if err := m.AddKey("myKey", "secret1", password, AddOptions{}); err != nil {
		t.Fatalf("AddKey() error = %v", err)
	}
	if !m.Exists() {
		t.Error("Exists() = false after AddKey")
	}
}

func TestAddKey(t *testing.T) {
	t.Run("creates file and encrypts value", func(t *testing.T) {
		m := newManager(t, "")

		if err := m.AddKey("myKey", "secret1", password, AddOptions{}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}

		f, err := envfile.Load(m.Path(), envfile.NewMatcher(m.Prefix()))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		ciphertext := f.Variables(true)["myKey"]
		if ciphertext == "" {
			t.Fatal("myKey not stored")
		}

		c := crypto.SecretBox{}
		plain, err := c.Decrypt(ciphertext, c.Hash(password))
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if plain != "secret1" {
			t.Errorf("decrypted = %q, want secret1", plain)
		}
	})

	t.Run("strips one 0x prefix", func(t *testing.T) {
		m := newManager(t, "")
		if err := m.AddKey("pk", "0x0xabcdef", password, AddOptions{}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}

		f, _ := envfile.Load(m.Path(), nil)
		c := crypto.SecretBox{}
		plain, err := c.Decrypt(f.Variables(true)["pk"], c.Hash(password))
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if plain != "0xabcdef" {
			t.Errorf("decrypted = %q, want 0xabcdef", plain)
		}
	})

	t.Run("appends new and replaces existing", func(t *testing.T) {
		m := seeded(t)
		linesBefore := strings.Count(readFile(t, m.Path()), "\n")

		if err := m.AddKey("other", "secret2", password, AddOptions{}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}
		afterAdd := readFile(t, m.Path())
		if got := strings.Count(afterAdd, "\n"); got != linesBefore+1 {
			t.Errorf("line count = %d, want %d", got, linesBefore+1)
		}

		if err := m.AddKey("myKey", "rotated", password, AddOptions{}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}
		afterReplace := readFile(t, m.Path())
		if got := strings.Count(afterReplace, "\n"); got != linesBefore+1 {
			t.Errorf("line count after replace = %d, want %d", got, linesBefore+1)
		}
		if !strings.HasPrefix(afterReplace, "NODE_ENV=test\ncryptoEnv_myKey=") {
			t.Errorf("replacement moved the line:\n%s", afterReplace)
		}

		names, err := m.ListKeys(true)
		if err != nil {
			t.Fatalf("ListKeys() error = %v", err)
		}
		if strings.Join(names, ",") != "myKey,other" {
			t.Errorf("ListKeys() = %v", names)
		}
	})

	t.Run("previous password accepted", func(t *testing.T) {
		m := seeded(t)

		if err := m.AddKey("other", "secret2", password, AddOptions{ForcePreviousPassword: true}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}

		names, _ := m.ListKeys(true)
		if len(names) != 2 {
			t.Errorf("ListKeys() = %v, want two active variables", names)
		}
	})

	t.Run("different password rejected without writing", func(t *testing.T) {
		m := seeded(t)
		before := readFile(t, m.Path())

		err := m.AddKey("other", "secret2", "different-pw", AddOptions{ForcePreviousPassword: true})
		if !errors.Is(err, ErrPasswordMismatch) {
			t.Fatalf("AddKey() error = %v, want ErrPasswordMismatch", err)
		}

		if after := readFile(t, m.Path()); after != before {
			t.Errorf("file changed after rejected add:\n%s", after)
		}
	})

	t.Run("different password allowed without check", func(t *testing.T) {
		m := seeded(t)
		if err := m.AddKey("other", "secret2", "different-pw", AddOptions{}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}
	})

	t.Run("disabled variables are not checked", func(t *testing.T) {
		m := seeded(t)
		if _, err := m.ToggleAll(DisableAll); err != nil {
			t.Fatalf("ToggleAll() error = %v", err)
		}

		if err := m.AddKey("other", "secret2", "different-pw", AddOptions{ForcePreviousPassword: true}); err != nil {
			t.Errorf("AddKey() error = %v, want nil", err)
		}
	})

	t.Run("empty secret", func(t *testing.T) {
		m := newManager(t, "")
		for _, secret := range []string{"", "0x"} {
			if err := m.AddKey("k", secret, password, AddOptions{}); !errors.Is(err, ErrEmptySecret) {
				t.Errorf("AddKey(%q) error = %v, want ErrEmptySecret", secret, err)
			}
		}
		if _, err := os.Stat(m.Path()); !os.IsNotExist(err) {
			t.Error("file should not be created")
		}
	})

	t.Run("empty password", func(t *testing.T) {
		m := newManager(t, "")
		if err := m.AddKey("k", "v", "", AddOptions{}); !errors.Is(err, ErrEmptyPassword) {
			t.Errorf("AddKey() error = %v, want ErrEmptyPassword", err)
		}
	})

	t.Run("invalid names", func(t *testing.T) {
		m := newManager(t, "")
		for _, name := range []string{"", "A=B", "has space"} {
			if err := m.AddKey(name, "v", password, AddOptions{}); !errors.Is(err, ErrInvalidName) {
				t.Errorf("AddKey(%q) error = %v, want ErrInvalidName", name, err)
			}
		}
	})

	t.Run("keeps blank lines when asked", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(path, []byte("A=1\n\nB=2\n"), 0600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		m, err := New(Options{Path: path, KeepBlankLines: true})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		if err := m.AddKey("k", "v", password, AddOptions{}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}
		if !strings.HasPrefix(readFile(t, path), "A=1\n\nB=2\n") {
			t.Error("blank line should be kept")
		}
	})

	t.Run("aes-gcm cipher", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		m, err := New(Options{Path: path, Cipher: crypto.AESGCM{}})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if err := m.AddKey("a", "one", password, AddOptions{}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}
		if err := m.AddKey("b", "two", password, AddOptions{ForcePreviousPassword: true}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}
	})
}

func TestListKeys(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		m := newManager(t, "")
		names, err := m.ListKeys(true)
		if err != nil {
			t.Fatalf("ListKeys() error = %v", err)
		}
		if len(names) != 0 {
			t.Errorf("ListKeys() = %v, want empty", names)
		}
	})

	t.Run("disabled names only in full list", func(t *testing.T) {
		m := seeded(t)
		if _, err := m.SetEnabled([]string{"myKey"}, false); err != nil {
			t.Fatalf("SetEnabled() error = %v", err)
		}

		active, _ := m.ListKeys(true)
		if len(active) != 0 {
			t.Errorf("ListKeys(true) = %v, want empty", active)
		}
		all, _ := m.ListKeys(false)
		if len(all) != 1 || all[0] != "myKey" {
			t.Errorf("ListKeys(false) = %v, want [myKey]", all)
		}
		if !m.HasDisabled() {
			t.Error("HasDisabled() = false")
		}
	})
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		enable, disable, toggle bool
		want                    Mode
		ok                      bool
	}{
		{true, true, true, EnableAll, true},
		{true, false, false, EnableAll, true},
		{false, true, true, DisableAll, true},
		{false, false, true, FlipAll, true},
		{false, false, false, FlipAll, false},
	}

	for _, tt := range tests {
		got, ok := ResolveMode(tt.enable, tt.disable, tt.toggle)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ResolveMode(%v, %v, %v) = (%v, %v), want (%v, %v)", tt.enable, tt.disable, tt.toggle, got, ok, tt.want, tt.ok)
		}
	}
}

func TestToggleAll(t *testing.T) {
	t.Run("flip twice restores file", func(t *testing.T) {
		m := seeded(t)
		if err := m.AddKey("other", "secret2", password, AddOptions{}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}
		if _, err := m.SetEnabled([]string{"other"}, false); err != nil {
			t.Fatalf("SetEnabled() error = %v", err)
		}
		before := readFile(t, m.Path())

		changes, err := m.ToggleAll(FlipAll)
		if err != nil {
			t.Fatalf("ToggleAll() error = %v", err)
		}
		if len(changes) != 2 {
			t.Errorf("first flip changed %d lines, want 2", len(changes))
		}
		if _, err := m.ToggleAll(FlipAll); err != nil {
			t.Fatalf("ToggleAll() error = %v", err)
		}

		if after := readFile(t, m.Path()); after != before {
			t.Errorf("double flip changed file:\n%s\nwant:\n%s", after, before)
		}
	})

	t.Run("enable all", func(t *testing.T) {
		m := seeded(t)
		if _, err := m.ToggleAll(DisableAll); err != nil {
			t.Fatalf("ToggleAll() error = %v", err)
		}
		if _, err := m.ToggleAll(EnableAll); err != nil {
			t.Fatalf("ToggleAll() error = %v", err)
		}

		active, _ := m.ListKeys(true)
		if len(active) != 1 {
			t.Errorf("ListKeys(true) = %v, want [myKey]", active)
		}
	})

	t.Run("no-op leaves file untouched", func(t *testing.T) {
		m := seeded(t)
		changes, err := m.ToggleAll(EnableAll)
		if err != nil {
			t.Fatalf("ToggleAll() error = %v", err)
		}
		if len(changes) != 0 {
			t.Errorf("changes = %+v, want none", changes)
		}
	})

	t.Run("missing file is a no-op", func(t *testing.T) {
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), ".env")
		m, err := New(Options{Path: path, Logger: &logger.Logger{Out: &buf}})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		changes, err := m.ToggleAll(FlipAll)
		if err != nil || changes != nil {
			t.Errorf("ToggleAll() = %v, %v", changes, err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("toggle should not create the file")
		}
		if !strings.Contains(buf.String(), "No encrypted env variables") {
			t.Errorf("log = %q", buf.String())
		}
	})

	t.Run("logs changes", func(t *testing.T) {
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), ".env")
		m, err := New(Options{Path: path, Logger: &logger.Logger{Out: &buf}})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if err := m.AddKey("myKey", "secret1", password, AddOptions{}); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}

		if _, err := m.Toggle(nil, FlipAll); err != nil {
			t.Fatalf("Toggle() error = %v", err)
		}
		if !strings.Contains(buf.String(), "Disabling") || !strings.Contains(buf.String(), "myKey") {
			t.Errorf("log = %q", buf.String())
		}
	})
}
