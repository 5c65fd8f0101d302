package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/OfficeDev/teams-toolkit-sub012/arm"
)

// writeKeyValues prints one KEY=VALUE line per entry, sorted by key.
func writeKeyValues(w io.Writer, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// manifest is a template batch read from YAML:
//
//	subscriptionId: 00000000-0000-0000-0000-000000000000
//	resourceGroup: my-rg
//	templates:
//	  - path: infra/main.bicep
//	    parameters: infra/main.parameters.json
//	    deploymentName: main
type manifest struct {
	SubscriptionID string         `yaml:"subscriptionId"`
	ResourceGroup  string         `yaml:"resourceGroup"`
	Templates      []arm.Template `yaml:"templates"`
}

// loadManifest reads a manifest. Relative template and parameter paths are
// resolved against the manifest's directory.
func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range m.Templates {
		m.Templates[i].Path = resolveFrom(base, m.Templates[i].Path)
		m.Templates[i].Parameters = resolveFrom(base, m.Templates[i].Parameters)
	}
	return &m, nil
}

func resolveFrom(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
