package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xmazu/cryptoenv/internal/config"
	"github.com/xmazu/cryptoenv/internal/crypto"
	"github.com/xmazu/cryptoenv/internal/logger"
	"github.com/xmazu/cryptoenv/internal/runenv"
	"github.com/xmazu/cryptoenv/internal/tui"
	"github.com/xmazu/cryptoenv/internal/watch"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command with the decrypted variables",
	Long: `Read the env file, ask for the password once, and run the command with the
decrypted variables added to its environment. Disabled variables are not
decrypted.

Use --watch to restart the command whenever the env file changes. The
password entered at start is reused for every restart.
Use --redact to replace secret values in the command output with
[REDACTED:NAME].`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runWatch   bool
	runRedact  bool
	runReplace bool
	runOnly    []string
)

func init() {
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "Restart the command when the env file changes")
	runCmd.Flags().BoolVar(&runRedact, "redact", false, "Redact decrypted values in the command output")
	runCmd.Flags().BoolVar(&runReplace, "replace-encrypted", false, "Also overwrite the prefixed variables with the plaintext")
	runCmd.Flags().StringSliceVar(&runOnly, "only", nil, "Decrypt only these names (can be repeated)")
	runCmd.Flags().StringVarP(&rootEnvPath, "env-path", "p", "", "Path of the env file (default .env)")
	runCmd.Flags().StringVar(&rootPrefix, "prefix", "", "Variable name prefix (default cryptoEnv_)")
	runCmd.Flags().StringVar(&rootCipher, "cipher", "", "Cipher used for the variables")
	rootCmd.AddCommand(runCmd)
}

// exitCodeError carries the exit status of the child process up to Execute.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.code)
}

type runEnvLoader struct {
	settings  config.Settings
	cipher    crypto.Cipher
	passwords runenv.PasswordSource
	log       *logger.Logger
}

// load reads the env file and decrypts it with a fresh state, so every
// reload decrypts again. The returned secrets are the decrypted values.
func (l *runEnvLoader) load(ctx context.Context) (runenv.MapEnv, map[string]string, error) {
	vars, err := runenv.ReadEnvFile(l.settings.EnvPath)
	if err != nil {
		return nil, nil, err
	}
	before := make(map[string]string, len(vars))
	for k, v := range vars {
		before[k] = v
	}

	var filter runenv.Filter
	if len(runOnly) > 0 {
		filter = runenv.ByNames(runOnly...)
	}

	d := runenv.New(runenv.Config{
		Prefix:    l.settings.Prefix,
		Cipher:    l.cipher,
		Env:       vars,
		State:     runenv.NewState(),
		Passwords: l.passwords,
		EnvPath:   l.settings.EnvPath,
		Logger:    l.log,
	})
	if _, err := d.Parse(ctx, runenv.ParseOptions{Filter: filter, ReplaceEncrypted: runReplace}); err != nil {
		return nil, nil, err
	}

	secrets := make(map[string]string)
	for k, v := range vars {
		if old, ok := before[k]; !ok || old != v {
			secrets[k] = v
		}
	}
	return vars, secrets, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	c, err := crypto.New(s.Cipher)
	if err != nil {
		return err
	}
	log := newLogger(cmd)

	loader := &runEnvLoader{
		settings:  s,
		cipher:    c,
		passwords: runenv.Remember(tui.TerminalPasswords{}),
		log:       log,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	vars, secrets, err := loader.load(ctx)
	if err != nil {
		return err
	}

	runner := &runenv.ProcessRunner{
		Command: args[0],
		Args:    args[1:],
		Env:     vars,
		Stdout:  cmd.OutOrStdout(),
		Stderr:  cmd.ErrOrStderr(),
	}
	if runRedact {
		runner.Secrets = secrets
	}

	if !runWatch {
		return runOnce(runner)
	}
	runner.NewGroup = true
	return runWithWatch(ctx, loader, runner, log)
}

func runOnce(runner *runenv.ProcessRunner) error {
	code, err := runner.Run()
	if code > 0 {
		return &exitCodeError{code: code}
	}
	return err
}

func runWithWatch(ctx context.Context, loader *runEnvLoader, runner *runenv.ProcessRunner, log *logger.Logger) error {
	w, err := watch.New(loader.settings.EnvPath, watch.DefaultDebounce)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := runner.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// exited is nil while no command runs after a failed reload.
	exited := runner.Done()
	for {
		select {
		case sig := <-sigCh:
			_ = runner.Stop()
			if sig == syscall.SIGTERM {
				return &exitCodeError{code: 143}
			}
			return &exitCodeError{code: 130}

		case <-ctx.Done():
			_ = runner.Stop()
			return ctx.Err()

		case <-w.Changes():
			log.Infof("%s", tui.Muted(loader.settings.EnvPath+" changed, restarting..."))
			if err := runner.Stop(); err != nil {
				log.Warnf("stop: %v", err)
			}
			exited = nil

			vars, secrets, err := loader.load(ctx)
			if err != nil {
				log.Errorf("reload %s: %v", loader.settings.EnvPath, err)
				continue
			}
			runner.Env = vars
			if runRedact {
				runner.Secrets = secrets
			}
			if err := runner.Start(); err != nil {
				return fmt.Errorf("restart command: %w", err)
			}
			exited = runner.Done()

		case <-exited:
			if code := runner.ExitCode(); code > 0 {
				return &exitCodeError{code: code}
			}
			return nil
		}
	}
}
