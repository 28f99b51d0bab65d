package config

import (
	"os"

	"github.com/xmazu/cryptoenv/internal/crypto"
	"github.com/xmazu/cryptoenv/internal/envfile"
	"github.com/xmazu/cryptoenv/internal/storage"
)

const (
	FileName  = ".cryptoenv.yaml"
	ConfigEnv = "CRYPTOENV_CONFIG"

	DefaultEnvPath = ".env"
)

// Settings are the project defaults. Command-line flags override them.
type Settings struct {
	Prefix         string `yaml:"prefix"`
	EnvPath        string `yaml:"env_path"`
	Cipher         string `yaml:"cipher"`
	NoOptimization bool   `yaml:"no_optimization"`
	CheckPrevious  bool   `yaml:"check_previous"`
}

func Defaults() Settings {
	return Settings{
		Prefix:  envfile.DefaultPrefix,
		EnvPath: DefaultEnvPath,
		Cipher:  crypto.CipherSecretBox,
	}
}

// Path returns the settings file location: $CRYPTOENV_CONFIG, or
// .cryptoenv.yaml in the working directory.
func Path() string {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	return FileName
}

// Load reads the settings file at path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (Settings, error) {
	s := Defaults()
	if _, err := storage.ReadYAML(path, &s); err != nil {
		return Defaults(), err
	}

	if s.Prefix == "" {
		s.Prefix = envfile.DefaultPrefix
	}
	if s.EnvPath == "" {
		s.EnvPath = DefaultEnvPath
	}
	if s.Cipher == "" {
		s.Cipher = crypto.CipherSecretBox
	}
	return s, nil
}

func Save(path string, s Settings) error {
	return storage.WriteYAML(path, s)
}
