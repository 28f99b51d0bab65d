package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xmazu/cryptoenv/internal/config"
	"github.com/xmazu/cryptoenv/internal/crypto"
	"github.com/xmazu/cryptoenv/internal/keys"
	"github.com/xmazu/cryptoenv/internal/logger"
	"github.com/xmazu/cryptoenv/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:           "cryptoenv [flags] [NAME...]",
	Short:         "Password-encrypted variables in your .env",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `CryptoEnv - keep secrets in .env encrypted with a password.

Each secret is stored as cryptoEnv_<NAME>=<ciphertext>. A commented line is a
disabled variable. At startup the program asks for the password once and
exports the decrypted value as <NAME>.

EXAMPLES:

  cryptoenv -n API_TOKEN          # add or replace a secret
  cryptoenv -l                    # list active variables
  cryptoenv -l -a                 # list all variables
  cryptoenv -t                    # flip every variable
  cryptoenv -d API_TOKEN          # disable one variable
  cryptoenv run -- node server.js # run with decrypted variables`,
	Args: cobra.ArbitraryArgs,
	RunE: runRoot,
}

var (
	rootNew           string
	rootKeepCase      bool
	rootList          bool
	rootAll           bool
	rootEnable        bool
	rootDisable       bool
	rootToggle        bool
	rootEnvPath       string
	rootCheckPrevious bool
	rootNoOptimize    bool
	rootPrefix        string
	rootCipher        string
	rootQuiet         bool
	rootVerbose       bool
)

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&rootNew, "new", "n", "", "Add or replace the encrypted variable NAME")
	f.BoolVar(&rootKeepCase, "keep-case", false, "Do not upper-case the name given to --new")
	f.BoolVarP(&rootList, "list", "l", false, "List the active encrypted variables")
	f.BoolVarP(&rootAll, "all", "a", false, "With --list, include disabled variables")
	f.BoolVarP(&rootEnable, "enable", "e", false, "Enable the given variables, or all")
	f.BoolVarP(&rootDisable, "disable", "d", false, "Disable the given variables, or all")
	f.BoolVarP(&rootToggle, "toggle", "t", false, "Flip the given variables, or all")
	f.StringVarP(&rootEnvPath, "env-path", "p", "", "Path of the env file (default .env)")
	f.BoolVar(&rootCheckPrevious, "check-previous", false, "Reject a password that does not open the existing variables")
	f.BoolVarP(&rootNoOptimize, "no-optimization", "u", false, "Keep blank lines when saving")
	f.StringVar(&rootPrefix, "prefix", "", "Variable name prefix (default cryptoEnv_)")
	f.StringVar(&rootCipher, "cipher", "", "Cipher: "+strings.Join(crypto.Names(), ", "))

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&rootQuiet, "quiet", "q", false, "Suppress non-error output")
	pf.BoolVarP(&rootVerbose, "verbose", "v", false, "Show diagnostics")

	rootCmd.SetVersionTemplate("cryptoenv version {{.Version}}\n")
}

// SetVersion sets the version string shown by --version (e.g. from ldflags).
func SetVersion(v string) { rootCmd.Version = v }

func Execute() {
	err := rootCmd.Execute()
	var exit *exitCodeError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, tui.Error("Error:"), err)
		os.Exit(1)
	}
}

// loadSettings reads the settings file and applies the flags that were set.
func loadSettings() (config.Settings, error) {
	s, err := config.Load(config.Path())
	if err != nil {
		return s, err
	}

	if rootEnvPath != "" {
		s.EnvPath = rootEnvPath
	}
	if rootPrefix != "" {
		s.Prefix = rootPrefix
	}
	if rootCipher != "" {
		s.Cipher = rootCipher
	}
	if rootCheckPrevious {
		s.CheckPrevious = true
	}
	if rootNoOptimize {
		s.NoOptimization = true
	}
	return s, nil
}

func newLogger(cmd *cobra.Command) *logger.Logger {
	log := logger.New()
	log.Out = cmd.ErrOrStderr()
	if rootQuiet {
		log.Quiet = true
	}
	if rootVerbose {
		log.Verbose = true
	}
	return log
}

func newManager(s config.Settings, log *logger.Logger) (*keys.Manager, error) {
	c, err := crypto.New(s.Cipher)
	if err != nil {
		return nil, err
	}
	return keys.New(keys.Options{
		Path:           s.EnvPath,
		Prefix:         s.Prefix,
		Cipher:         c,
		KeepBlankLines: s.NoOptimization,
		Logger:         log,
	})
}

func runRoot(cmd *cobra.Command, args []string) error {
	mode, toggling := keys.ResolveMode(rootEnable, rootDisable, rootToggle)
	if rootNew == "" && !toggling && !rootList {
		return cmd.Help()
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}
	log := newLogger(cmd)
	m, err := newManager(s, log)
	if err != nil {
		return err
	}

	switch {
	case rootNew != "":
		name := rootNew
		if !rootKeepCase {
			name = strings.ToUpper(name)
		}
		return addKey(m, name, s.CheckPrevious, log)
	case toggling:
		_, err := m.Toggle(args, mode)
		return err
	default:
		return listKeys(cmd, m, log)
	}
}

func addKey(m *keys.Manager, name string, checkPrevious bool, log *logger.Logger) error {
	secret, err := tui.HiddenInput("Type or paste your secret variable")
	if err != nil {
		return err
	}
	if strings.TrimPrefix(secret, "0x") == "" {
		return keys.ErrEmptySecret
	}

	password, err := tui.NewPassword("Type a good password")
	if err != nil {
		return err
	}

	err = m.AddKey(name, secret, password, keys.AddOptions{ForcePreviousPassword: checkPrevious})
	if errors.Is(err, keys.ErrPasswordMismatch) {
		return fmt.Errorf("%w; use the same password for every variable in %s", err, m.Path())
	}
	if err != nil {
		return err
	}
	log.Infof("%s %s", tui.Success("Keys successfully stored"), tui.Muted("("+name+")"))
	return nil
}

func listKeys(cmd *cobra.Command, m *keys.Manager, log *logger.Logger) error {
	if !m.Exists() {
		log.Infof("No encrypted env variables, yet")
		return nil
	}

	names, err := m.ListKeys(!rootAll)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rootAll {
		fmt.Fprintln(out, "All env variables:")
	} else {
		fmt.Fprintln(out, "Active env variables:")
	}
	for _, name := range names {
		fmt.Fprintln(out, "  "+name)
	}
	if !rootAll && m.HasDisabled() {
		fmt.Fprintln(out, tui.Muted("Some variables are disabled. Use -a to show them."))
	}
	return nil
}
