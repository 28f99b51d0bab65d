// Package cryptoenv decrypts encrypted variables from the process
// environment at startup.
//
// Variables named cryptoEnv_<NAME> holding a ciphertext written by the
// cryptoenv command are decrypted with a password and exported as <NAME>:
//
//	func main() {
//		if _, err := cryptoenv.Load(".env"); err != nil {
//			log.Fatal(err)
//		}
//		token := os.Getenv("API_TOKEN")
//		...
//	}
//
// Decryption is attempted at most once per process. Later calls to Parse or
// Load return immediately, so libraries may call them defensively.
package cryptoenv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/joho/godotenv"

	"github.com/xmazu/cryptoenv/internal/crypto"
	"github.com/xmazu/cryptoenv/internal/envfile"
	"github.com/xmazu/cryptoenv/internal/logger"
	"github.com/xmazu/cryptoenv/internal/runenv"
	"github.com/xmazu/cryptoenv/internal/tui"
)

const DefaultPrefix = envfile.DefaultPrefix

type Result = runenv.Result

var (
	ErrPromptCancelled = tui.ErrPromptCancelled
	ErrUnknownCipher   = crypto.ErrUnknownCipher
)

var processState = runenv.NewState()

type options struct {
	prefix      string
	envPath     string
	cipher      string
	password    string
	filter      runenv.Filter
	replace     bool
	log         *logger.Logger
	passwords   runenv.PasswordSource
	environment runenv.Environment
	ctx         context.Context
}

type Option func(*options)

func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithEnvPath names the env file used for diagnostics about disabled keys.
// Load sets it to the file it loads.
func WithEnvPath(path string) Option {
	return func(o *options) { o.envPath = path }
}

// WithCipher selects the cipher by name ("secretbox", "aes-gcm" or "age").
func WithCipher(name string) Option {
	return func(o *options) { o.cipher = name }
}

// WithPassword skips the interactive prompt. Prefer the prompt outside tests.
func WithPassword(password string) Option {
	return func(o *options) { o.password = password }
}

// WithFilter decrypts only the names for which fn returns true.
func WithFilter(fn func(name string) bool) Option {
	return func(o *options) { o.filter = runenv.ByPredicate(fn) }
}

// WithPattern decrypts only the names matching re.
func WithPattern(re *regexp.Regexp) Option {
	return func(o *options) { o.filter = runenv.ByPattern(re) }
}

// WithNames decrypts only the given names.
func WithNames(names ...string) Option {
	return func(o *options) { o.filter = runenv.ByNames(names...) }
}

// WithReplaceEncrypted also overwrites cryptoEnv_<NAME> with the plaintext.
func WithReplaceEncrypted() Option {
	return func(o *options) { o.replace = true }
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithPasswordSource replaces the terminal prompt.
func WithPasswordSource(src runenv.PasswordSource) Option {
	return func(o *options) { o.passwords = src }
}

func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

func withEnvironment(env runenv.Environment) Option {
	return func(o *options) { o.environment = env }
}

func buildOptions(opts []Option) options {
	o := options{
		prefix:    DefaultPrefix,
		envPath:   ".env",
		cipher:    crypto.CipherSecretBox,
		passwords: tui.TerminalPasswords{},
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.New()
	}
	return o
}

// Parse decrypts the prefixed variables of the process environment.
func Parse(opts ...Option) (Result, error) {
	return parse(processState, buildOptions(opts))
}

func parse(state *runenv.State, o options) (Result, error) {
	c, err := crypto.New(o.cipher)
	if err != nil {
		return Result{}, err
	}

	d := runenv.New(runenv.Config{
		Prefix:    o.prefix,
		Cipher:    c,
		Env:       o.environment,
		State:     state,
		Passwords: o.passwords,
		EnvPath:   o.envPath,
		Logger:    o.log,
	})
	return d.Parse(o.ctx, runenv.ParseOptions{
		Filter:           o.filter,
		Password:         o.password,
		ReplaceEncrypted: o.replace,
	})
}

// Load reads the dotenv files into the process environment and then calls
// Parse. Variables already set in the environment are not overridden. With
// no paths, .env is loaded. Missing files are skipped, so variables exported
// by the shell are still decrypted.
func Load(paths ...string) (Result, error) {
	return LoadWith(paths, nil)
}

func LoadWith(paths []string, opts []Option) (Result, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		err := godotenv.Load(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("load env file: %w", err)
		}
	}
	return Parse(append([]Option{WithEnvPath(paths[0])}, opts...)...)
}

// Attempted reports whether Parse already ran in this process.
func Attempted() bool {
	return processState.Attempted()
}

// Reset forgets the previous attempt so the next Parse decrypts again.
// Intended for tests.
func Reset() {
	processState.Reset()
}
