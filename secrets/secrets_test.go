package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrefersValue(t *testing.T) {
	t.Setenv("TEST_SECRET", "inline")
	t.Setenv("TEST_SECRET_PATH", "/does/not/exist")

	got, err := Load("TEST_SECRET", "TEST_SECRET_PATH", "")
	require.NoError(t, err)
	assert.Equal(t, "inline", string(got))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(path, []byte("  secret\n"), 0o600))
	t.Setenv("TEST_SECRET_PATH", path)

	got, err := Load("TEST_SECRET_UNSET", "TEST_SECRET_PATH", "")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(got))

	empty := filepath.Join(dir, "empty.pem")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = LoadFromFile(empty)
	assert.ErrorContains(t, err, "is empty")

	_, err = LoadFromFile("")
	assert.Error(t, err)
}
