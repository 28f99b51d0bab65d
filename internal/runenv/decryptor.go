// Package runenv decrypts prefixed variables into an environment and runs
// commands with the result.
package runenv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xmazu/cryptoenv/internal/crypto"
	"github.com/xmazu/cryptoenv/internal/envfile"
	"github.com/xmazu/cryptoenv/internal/logger"
	"github.com/xmazu/cryptoenv/internal/tui"
)

const (
	msgDisabled = `CryptoEnv > some encrypted keys are disabled. Run "cryptoenv -t" to enable them`
	msgNoKeys   = "CryptoEnv > no encrypted keys found"
	msgSkipped  = "CryptoEnv > decryption skipped"
)

// State records whether decryption has been attempted. Share one State
// between every Decryptor that should decrypt at most once.
type State struct {
	mu        sync.Mutex
	attempted bool
}

func NewState() *State {
	return &State{}
}

func (s *State) Attempted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempted
}

func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted = false
}

type Config struct {
	Prefix    string
	Cipher    crypto.Cipher
	Env       Environment
	State     *State
	Passwords PasswordSource
	// EnvPath is consulted only to tell disabled keys apart from missing ones.
	EnvPath string
	Logger  *logger.Logger
}

type Decryptor struct {
	matcher   *envfile.Matcher
	cipher    crypto.Cipher
	env       Environment
	state     *State
	passwords PasswordSource
	envPath   string
	log       *logger.Logger
}

func New(cfg Config) *Decryptor {
	if cfg.Cipher == nil {
		cfg.Cipher = crypto.SecretBox{}
	}
	if cfg.Env == nil {
		cfg.Env = ProcessEnv{}
	}
	if cfg.State == nil {
		cfg.State = NewState()
	}
	if cfg.EnvPath == "" {
		cfg.EnvPath = ".env"
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	return &Decryptor{
		matcher:   envfile.NewMatcher(cfg.Prefix),
		cipher:    cfg.Cipher,
		env:       cfg.Env,
		state:     cfg.State,
		passwords: cfg.Passwords,
		envPath:   cfg.EnvPath,
		log:       cfg.Logger,
	}
}

type ParseOptions struct {
	Filter Filter
	// Password skips the password source when set.
	Password string
	// ReplaceEncrypted also overwrites <prefix><NAME> with the plaintext.
	ReplaceEncrypted bool
}

type Result struct {
	AlreadyAttempted bool
	Skipped          bool
	Candidates       int
	Decrypted        int
	Failed           int
}

// Candidates returns the logical name to ciphertext map of every prefixed,
// ciphertext-shaped variable in the environment accepted by filter.
func (d *Decryptor) Candidates(filter Filter) map[string]string {
	prefix := d.matcher.Prefix()
	found := make(map[string]string)
	for _, entry := range d.env.Environ() {
		key, value, ok := splitEnv(entry)
		if !ok || !strings.HasPrefix(key, prefix) || !envfile.IsCiphertextShaped(value) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if name == "" || !filter.Match(name) {
			continue
		}
		found[name] = value
	}
	return found
}

// Parse decrypts the candidate variables into the environment. Only the
// first call on a State does anything; every later call returns at once
// with AlreadyAttempted set, whatever the outcome of the first one.
// Variables that do not open with the password are left as they are.
func (d *Decryptor) Parse(ctx context.Context, opts ParseOptions) (Result, error) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()

	if d.state.attempted {
		return Result{AlreadyAttempted: true}, nil
	}
	d.state.attempted = true

	candidates := d.Candidates(opts.Filter)
	res := Result{Candidates: len(candidates)}
	if len(candidates) == 0 {
		d.reportNoKeys()
		return res, nil
	}

	password := opts.Password
	if password == "" {
		pw, err := d.obtainPassword(ctx)
		if err != nil {
			return res, err
		}
		if pw == "" {
			d.log.Infof("%s", tui.Muted(msgSkipped))
			res.Skipped = true
			return res, nil
		}
		password = pw
	}

	key := d.cipher.Hash(password)
	prefix := d.matcher.Prefix()
	for name, ciphertext := range candidates {
		plaintext, err := d.cipher.Decrypt(ciphertext, key)
		if err != nil {
			res.Failed++
			continue
		}
		if err := d.env.Setenv(name, plaintext); err != nil {
			return res, fmt.Errorf("set %s: %w", name, err)
		}
		if opts.ReplaceEncrypted {
			if err := d.env.Setenv(prefix+name, plaintext); err != nil {
				return res, fmt.Errorf("set %s%s: %w", prefix, name, err)
			}
		}
		res.Decrypted++
	}

	if res.Decrypted > 0 {
		d.log.Infof("%s", tui.Success(fmt.Sprintf("CryptoEnv > %d key%s decrypted", res.Decrypted, plural(res.Decrypted))))
	} else {
		d.reportNoKeys()
	}
	return res, nil
}

func (d *Decryptor) obtainPassword(ctx context.Context) (string, error) {
	if d.passwords == nil {
		return "", nil
	}
	pw, err := d.passwords.Obtain(ctx)
	if errors.Is(err, tui.ErrNonInteractive) {
		d.log.Debugf("CryptoEnv > no terminal to ask for a password")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("obtain password: %w", err)
	}
	return pw, nil
}

func (d *Decryptor) reportNoKeys() {
	if envfile.HasAnyDisabled(d.envPath, d.matcher) {
		d.log.Debugf(msgDisabled)
		return
	}
	d.log.Debugf(msgNoKeys)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
