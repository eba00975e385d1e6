// Package templates holds the default report texts applied to new reports.
// Defaults are embedded; a YAML file in the config directory overrides them
// key by key.
package templates

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/CosmoTheDev/assessmaker/models"
	"go.yaml.in/yaml/v3"
)

// ProjectNamePlaceholder is replaced by the report's project name at render time.
const ProjectNamePlaceholder = "{PROJECT_NAME}"

//go:embed defaults.yaml
var defaultsYAML []byte

// Set is one collection of report texts.
type Set struct {
	ExecutiveSummary string `yaml:"executive_summary" json:"executiveSummary"`
	Scope            string `yaml:"scope" json:"scope"`
	Methodology      string `yaml:"methodology" json:"methodology"`
	Conclusion       string `yaml:"conclusion" json:"conclusion"`
	AssessorName     string `yaml:"assessor_name" json:"assessorName"`
}

// Defaults returns the built-in texts.
func Defaults() (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(defaultsYAML, &s); err != nil {
		return nil, fmt.Errorf("templates: parsing bundled defaults: %w", err)
	}
	return &s, nil
}

// Load reads path over the built-in defaults. An empty path or a missing
// file yields the defaults alone.
func Load(path string) (*Set, error) {
	s, err := Defaults()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("templates: reading %q: %w", path, err)
	}
	// Keys absent from the file keep their default value.
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("templates: parsing %q: %w", path, err)
	}
	return s, nil
}

// Save writes s to path as YAML.
func Save(path string, s *Set) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("templates: encoding: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("templates: creating directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Apply fills the empty text fields of r from s. Fields the caller set are
// never overwritten.
func (s *Set) Apply(r *models.Report) {
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	fill(&r.ExecutiveSummary, s.ExecutiveSummary)
	fill(&r.Scope, s.Scope)
	fill(&r.Methodology, s.Methodology)
	fill(&r.Conclusion, s.Conclusion)
	fill(&r.AssessorName, s.AssessorName)
}

// Substitute replaces every ProjectNamePlaceholder in text with projectName.
func Substitute(text, projectName string) string {
	return strings.ReplaceAll(text, ProjectNamePlaceholder, projectName)
}
