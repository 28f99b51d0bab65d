// Package keys adds, lists and toggles encrypted variables in an env file.
package keys

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xmazu/cryptoenv/internal/crypto"
	"github.com/xmazu/cryptoenv/internal/envfile"
	"github.com/xmazu/cryptoenv/internal/logger"
	"github.com/xmazu/cryptoenv/internal/tui"
)

var (
	ErrEmptySecret      = errors.New("no secret has been passed")
	ErrEmptyPassword    = errors.New("no password has been passed")
	ErrInvalidName      = errors.New("invalid variable name")
	ErrPasswordMismatch = errors.New("this is not the password used in the past")
)

type Options struct {
	Path           string
	Prefix         string
	Cipher         crypto.Cipher
	KeepBlankLines bool
	Logger         *logger.Logger
}

type Manager struct {
	path       string
	matcher    *envfile.Matcher
	cipher     crypto.Cipher
	pruneBlank bool
	log        *logger.Logger
}

func New(opts Options) (*Manager, error) {
	if opts.Path == "" {
		return nil, errors.New("env file path must not be empty")
	}
	if opts.Cipher == nil {
		opts.Cipher = crypto.SecretBox{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Manager{
		path:       opts.Path,
		matcher:    envfile.NewMatcher(opts.Prefix),
		cipher:     opts.Cipher,
		pruneBlank: !opts.KeepBlankLines,
		log:        opts.Logger,
	}, nil
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Prefix() string {
	return m.matcher.Prefix()
}

type AddOptions struct {
	// ForcePreviousPassword rejects a password that does not open every
	// active variable already in the file.
	ForcePreviousPassword bool
}

// AddKey encrypts plaintext under password and stores it as name. Nothing is
// written unless every check passes.
func (m *Manager) AddKey(name, plaintext, password string, opts AddOptions) error {
	if err := validateName(name); err != nil {
		return err
	}

	plaintext = strings.TrimPrefix(plaintext, "0x")
	if plaintext == "" {
		return ErrEmptySecret
	}
	if password == "" {
		return ErrEmptyPassword
	}

	key := m.cipher.Hash(password)

	f, err := envfile.LoadOrNew(m.path, m.matcher)
	if err != nil {
		return err
	}

	if opts.ForcePreviousPassword {
		for existing, ciphertext := range f.Variables(true) {
			if _, err := m.cipher.Decrypt(ciphertext, key); err != nil {
				m.log.Debugf("%s does not decrypt with the given password", existing)
				return ErrPasswordMismatch
			}
		}
	}

	ciphertext, err := m.cipher.Encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}

	f.Upsert(name, ciphertext)
	return f.Save(m.pruneBlank)
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "= \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ListKeys returns the sorted names of the encrypted variables. A missing
// file has no keys.
func (m *Manager) ListKeys(activeOnly bool) ([]string, error) {
	f, err := envfile.LoadOrNew(m.path, m.matcher)
	if err != nil {
		return nil, err
	}

	vars := f.Variables(activeOnly)
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether the env file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// HasDisabled reports whether the file holds at least one disabled variable.
func (m *Manager) HasDisabled() bool {
	return envfile.HasAnyDisabled(m.path, m.matcher)
}

type Mode int

const (
	EnableAll Mode = iota
	DisableAll
	FlipAll
)

func (mode Mode) direction() envfile.Direction {
	switch mode {
	case EnableAll:
		return envfile.Enable
	case DisableAll:
		return envfile.Disable
	default:
		return envfile.Flip
	}
}

// ResolveMode picks the mode for a combination of flags: enable beats
// disable, disable beats toggle. ok is false when no flag is set.
func ResolveMode(enable, disable, toggle bool) (mode Mode, ok bool) {
	switch {
	case enable:
		return EnableAll, true
	case disable:
		return DisableAll, true
	case toggle:
		return FlipAll, true
	default:
		return FlipAll, false
	}
}

// ToggleAll applies mode to every encrypted variable.
func (m *Manager) ToggleAll(mode Mode) ([]envfile.Change, error) {
	return m.apply(mode.direction(), nil)
}

// SetEnabled enables or disables the named variables. No names selects all.
func (m *Manager) SetEnabled(names []string, enabled bool) ([]envfile.Change, error) {
	dir := envfile.Disable
	if enabled {
		dir = envfile.Enable
	}
	return m.apply(dir, selectNames(names))
}

// Toggle applies mode to the named variables. No names selects all.
func (m *Manager) Toggle(names []string, mode Mode) ([]envfile.Change, error) {
	return m.apply(mode.direction(), selectNames(names))
}

func selectNames(names []string) func(string) bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func (m *Manager) apply(dir envfile.Direction, selected func(string) bool) ([]envfile.Change, error) {
	f, err := envfile.Load(m.path, m.matcher)
	if errors.Is(err, envfile.ErrNotFound) {
		m.log.Infof("No encrypted env variables, yet")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	changes := f.Toggle(dir, selected)
	if len(changes) == 0 {
		return nil, nil
	}

	for _, c := range changes {
		m.log.Infof("%s %s", tui.State(c.Enabled), tui.Key(c.Name))
	}
	if err := f.Save(m.pruneBlank); err != nil {
		return nil, err
	}
	return changes, nil
}
