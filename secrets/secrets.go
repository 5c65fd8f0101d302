package secrets

import (
	"bytes"
	"fmt"
	"os"
)

// LoadFromFile loads a secret from a file path
func LoadFromFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("secret file path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("secret file %s is empty", path)
	}

	return data, nil
}

// Load returns the secret held by valueEnv when it is set, otherwise the
// content of the file named by pathEnv (or defaultPath). CI runners usually
// inject the value, local setups keep a file.
func Load(valueEnv, pathEnv, defaultPath string) ([]byte, error) {
	if v := os.Getenv(valueEnv); v != "" {
		return []byte(v), nil
	}
	return LoadFromFile(GetSecretPath(pathEnv, defaultPath))
}

// GetSecretPath returns the secret file path from environment variable
// or falls back to default path if not set
func GetSecretPath(envVar, defaultPath string) string {
	if path := os.Getenv(envVar); path != "" {
		return path
	}
	return defaultPath
}
