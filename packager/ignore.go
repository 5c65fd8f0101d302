package packager

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/rs/zerolog"
)

// DefaultTempFolder is the folder the deploy tool writes its own artifacts
// into. It is always excluded from packaging.
const DefaultTempFolder = ".deployment"

// IgnoreRules decides which relative paths are left out of an artifact.
type IgnoreRules struct {
	patterns []string
	matcher  *patternmatcher.PatternMatcher
}

// NewIgnoreRules compiles patterns plus the implicit temp folder rule.
func NewIgnoreRules(tempFolder string, patterns ...string) (*IgnoreRules, error) {
	if tempFolder == "" {
		tempFolder = DefaultTempFolder
	}
	all := append([]string{tempFolder}, patterns...)
	pm, err := patternmatcher.New(all)
	if err != nil {
		return nil, fmt.Errorf("failed to compile ignore rules: %w", err)
	}
	return &IgnoreRules{patterns: all, matcher: pm}, nil
}

// LoadIgnoreRules reads an ignore file in .dockerignore syntax. A missing
// file is not an error: a warning is logged and only the implicit rule
// applies.
func LoadIgnoreRules(path, tempFolder string, logger zerolog.Logger) (*IgnoreRules, error) {
	if path == "" {
		return NewIgnoreRules(tempFolder)
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn().
			Str("ignore_file", path).
			Msg("Ignore file not found, all files will be deployed")
		return NewIgnoreRules(tempFolder)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ignore file %s: %w", path, err)
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore file %s: %w", path, err)
	}
	return NewIgnoreRules(tempFolder, patterns...)
}

// Ignored reports whether rel, a slash-separated path relative to the
// source root, is excluded.
func (r *IgnoreRules) Ignored(rel string) (bool, error) {
	return r.matcher.MatchesOrParentMatches(filepath.FromSlash(rel))
}

// canSkipDirs reports whether an ignored directory can be pruned without
// visiting its children, which is only safe without negated patterns.
func (r *IgnoreRules) canSkipDirs() bool {
	return !r.matcher.Exclusions()
}

// Patterns returns the compiled patterns, implicit rule first.
func (r *IgnoreRules) Patterns() []string {
	return append([]string(nil), r.patterns...)
}
