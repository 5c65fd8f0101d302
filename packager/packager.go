// Package packager turns a source directory into a deployable zip artifact.
package packager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

// File is a regular file selected for deployment.
type File struct {
	// Rel is slash-separated and relative to the source root.
	Rel     string
	Abs     string
	Size    int64
	ModTime time.Time
}

// Artifact is a packaged zip on disk.
type Artifact struct {
	Path    string
	Size    int64
	Entries int
}

// Open returns a fresh reader over the zip. Each upload attempt opens its
// own reader.
func (a *Artifact) Open() (io.ReadCloser, error) {
	return os.Open(a.Path)
}

// Len returns the artifact size in bytes.
func (a *Artifact) Len() int64 { return a.Size }

// Packager builds artifacts from source directories.
type Packager struct {
	logger zerolog.Logger
}

// New creates a Packager.
func New(logger zerolog.Logger) *Packager {
	return &Packager{logger: logger}
}

// Collect walks sourceDir and returns every regular file not excluded by
// rules, sorted by relative path.
func (p *Packager) Collect(ctx context.Context, sourceDir string, rules *IgnoreRules) ([]File, error) {
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return nil, deployerr.FolderNotExists(sourceDir)
	}

	var files []File
	err = filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == sourceDir {
			return nil
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		ignored, err := rules.Ignored(rel)
		if err != nil {
			return fmt.Errorf("failed to match %s: %w", rel, err)
		}
		if d.IsDir() {
			if ignored && rules.canSkipDirs() {
				return filepath.SkipDir
			}
			return nil
		}
		if ignored || !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, File{Rel: rel, Abs: path, Size: fi.Size(), ModTime: fi.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", sourceDir, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// Package writes every non-ignored file under sourceDir into a zip at
// cachePath. Any previous file at cachePath is removed first.
func (p *Packager) Package(ctx context.Context, sourceDir, cachePath string, rules *IgnoreRules) (*Artifact, error) {
	if err := RemoveCache(cachePath); err != nil {
		return nil, err
	}

	files, err := p.Collect(ctx, sourceDir, rules)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, deployerr.ErrEmptyArtifact
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact folder: %w", err)
	}
	out, err := os.Create(cachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact %s: %w", cachePath, err)
	}

	if err := writeZip(ctx, out, files); err != nil {
		out.Close()
		os.Remove(cachePath)
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("failed to close artifact %s: %w", cachePath, err)
	}

	info, err := os.Stat(cachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact %s: %w", cachePath, err)
	}

	p.logger.Info().
		Str("source", sourceDir).
		Str("artifact", cachePath).
		Int("entries", len(files)).
		Int64("bytes", info.Size()).
		Msg("Packaged deployment artifact")

	return &Artifact{Path: cachePath, Size: info.Size(), Entries: len(files)}, nil
}

func writeZip(ctx context.Context, w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(zw, f); err != nil {
			return fmt.Errorf("failed to add %s to artifact: %w", f.Rel, err)
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, f File) error {
	info, err := os.Stat(f.Abs)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = f.Rel
	header.Method = zip.Deflate
	header.Modified = info.ModTime()

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	src, err := os.Open(f.Abs)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}

// RemoveCache deletes a cached artifact. A missing file is fine; a file held
// open by another process is reported as ErrCacheFileLocked.
func RemoveCache(cachePath string) error {
	err := os.Remove(cachePath)
	switch {
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return nil
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.ETXTBSY), errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", deployerr.ErrCacheFileLocked, cachePath)
	default:
		return fmt.Errorf("failed to remove cached artifact %s: %w", cachePath, err)
	}
}

// Cleanup removes the artifact and its parent folder when that folder is
// left empty. Failures are logged, never returned.
func (p *Packager) Cleanup(artifactPath string) {
	if err := os.Remove(artifactPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn().Err(err).Str("artifact", artifactPath).Msg("Failed to remove deployment artifact")
		return
	}

	parent := filepath.Dir(artifactPath)
	entries, err := os.ReadDir(parent)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(parent); err != nil {
		p.logger.Warn().Err(err).Str("folder", parent).Msg("Failed to remove empty artifact folder")
	}
}
