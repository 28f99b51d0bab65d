package runenv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Environment is the variable set the decryptor reads and writes.
type Environment interface {
	Environ() []string
	Setenv(key, value string) error
}

// ProcessEnv is the environment of the current process.
type ProcessEnv struct{}

func (ProcessEnv) Environ() []string { return os.Environ() }

func (ProcessEnv) Setenv(key, value string) error { return os.Setenv(key, value) }

// MapEnv is an in-memory environment, used to build the environment of a
// child process.
type MapEnv map[string]string

func (m MapEnv) Environ() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

func (m MapEnv) Setenv(key, value string) error {
	m[key] = value
	return nil
}

// ReadEnvFile parses a dotenv file into a MapEnv. Commented lines, and
// therefore disabled variables, are not included. A missing file yields an
// empty MapEnv.
func ReadEnvFile(path string) (MapEnv, error) {
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return MapEnv{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return MapEnv(vars), nil
}

func splitEnv(entry string) (key, value string, ok bool) {
	idx := strings.Index(entry, "=")
	if idx <= 0 {
		return "", "", false
	}
	return entry[:idx], entry[idx+1:], true
}
