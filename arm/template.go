package arm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

var placeholder = regexp.MustCompile(`\$\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Compiler turns .bicep files into ARM JSON.
type Compiler struct {
	// Command is the bicep executable.
	Command string
	run     func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// NewCompiler creates a Compiler for the given executable.
func NewCompiler(command string) *Compiler {
	if command == "" {
		command = "bicep"
	}
	return &Compiler{Command: command, run: runCommand}
}

// Compile runs `bicep build <path> --stdout` and parses its output.
func (c *Compiler) Compile(ctx context.Context, path string) (map[string]any, error) {
	stdout, stderr, err := c.run(ctx, c.Command, "build", path, "--stdout")
	if err != nil {
		return nil, &deployerr.CompileError{Path: path, Output: string(stderr), Err: err}
	}

	var template map[string]any
	if err := json.Unmarshal(stdout, &template); err != nil {
		return nil, &deployerr.CompileError{Path: path, Output: "compiler produced invalid JSON", Err: err}
	}
	return template, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// loadTemplate reads a JSON template or compiles a Bicep one.
func (d *Deployer) loadTemplate(ctx context.Context, path string) (map[string]any, error) {
	if strings.EqualFold(filepath.Ext(path), ".bicep") {
		return d.compiler.Compile(ctx, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &deployerr.ParameterError{Path: path, Err: err}
	}
	var template map[string]any
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, &deployerr.ParameterError{Path: path, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	return template, nil
}

// loadParameters reads a parameters file, expands ${{NAME}} placeholders
// and returns its "parameters" object.
func (d *Deployer) loadParameters(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &deployerr.ParameterError{Path: path, Err: err}
	}

	expanded, err := expandPlaceholders(path, string(data), d.lookupEnv)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, &deployerr.ParameterError{Path: path, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if params, ok := doc["parameters"].(map[string]any); ok {
		return params, nil
	}
	return doc, nil
}

// expandPlaceholders substitutes every ${{NAME}} from lookup. All unset
// names are reported together.
func expandPlaceholders(path, content string, lookup func(string) (string, bool)) (string, error) {
	missing := map[string]struct{}{}
	out := placeholder.ReplaceAllStringFunc(content, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v, ok := lookup(name)
		if !ok {
			missing[name] = struct{}{}
			return m
		}
		return escapeJSON(v)
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", &deployerr.ParameterError{Path: path, Missing: names}
	}
	return out, nil
}

// escapeJSON makes v safe to splice into a JSON string literal.
func escapeJSON(v string) string {
	b, _ := json.Marshal(v)
	return string(b[1 : len(b)-1])
}
