package packager

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

// Lock takes an exclusive, non-blocking lock for cachePath so only one
// deploy per target touches the cache file at a time. The lock file lives in
// the system temp dir, keyed by the absolute cache path. The returned func
// releases the lock.
func Lock(cachePath string) (func(), error) {
	abs, err := filepath.Abs(cachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", cachePath, err)
	}
	sum := sha256.Sum256([]byte(abs))
	fl := flock.New(filepath.Join(os.TempDir(), "deployctl-"+hex.EncodeToString(sum[:8])+".lock"))

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", cachePath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", deployerr.ErrCacheFileLocked, cachePath)
	}

	return func() { fl.Unlock() }, nil
}
