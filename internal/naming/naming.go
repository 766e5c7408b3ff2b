// Package naming maps stored model identifiers to display names.
//
// Mappings come from a naming file (YAML or TOML) instead of being compiled
// in, so each deployment can carry its own table:
//
//	display:
//	  allenai_olmo-2-1124-7b-instruct: OLMo 2 7B Instruct
//	renames:
//	  - suffix: 47-32k-llama_checkpoint-700
//	    display: AMALIA-LLaMA-3.1-8B-32k
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"evalview/internal/errors"
)

// Lookup resolves the name shown for a stored model identifier
type Lookup interface {
	DisplayName(id string) string
}

// SuffixRename renames every identifier ending in Suffix to Display
type SuffixRename struct {
	Suffix  string `yaml:"suffix" toml:"suffix" json:"suffix"`
	Display string `yaml:"display" toml:"display" json:"display"`
}

// File is the on-disk naming table
type File struct {
	Display map[string]string `yaml:"display" toml:"display" json:"display"`
	Renames []SuffixRename    `yaml:"renames" toml:"renames" json:"renames"`
}

// LoadFile reads a naming file; the format follows the extension
// (.yaml, .yml or .toml).
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.InvalidConfig, fmt.Sprintf("failed to read naming file %s", path), err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		_, err = toml.Decode(string(data), &f)
	default:
		return nil, errors.Newf(errors.InvalidConfig, "naming file %s must be .yaml, .yml or .toml", path)
	}
	if err != nil {
		return nil, errors.New(errors.InvalidConfig, fmt.Sprintf("failed to parse naming file %s", path), err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate rejects empty entries and duplicate suffixes
func (f *File) Validate() error {
	for id, name := range f.Display {
		if strings.TrimSpace(id) == "" || strings.TrimSpace(name) == "" {
			return errors.Newf(errors.InvalidConfig, "display entry %q -> %q has an empty side", id, name)
		}
	}
	seen := make(map[string]bool, len(f.Renames))
	for i, r := range f.Renames {
		if r.Suffix == "" || r.Display == "" {
			return errors.Newf(errors.InvalidConfig, "renames[%d] needs both suffix and display", i)
		}
		if seen[r.Suffix] {
			return errors.Newf(errors.InvalidConfig, "renames[%d]: duplicate suffix %q", i, r.Suffix)
		}
		seen[r.Suffix] = true
	}
	return nil
}

// Lookup builds a MapLookup from the file
func (f *File) Lookup() *MapLookup {
	return NewMapLookup(f.Display, f.Renames)
}

// MapLookup resolves exact identifiers first, then the first matching suffix
// rename, and otherwise returns the identifier unchanged.
type MapLookup struct {
	display map[string]string
	renames []SuffixRename
}

// NewMapLookup copies display and renames into a new lookup
func NewMapLookup(display map[string]string, renames []SuffixRename) *MapLookup {
	m := &MapLookup{display: make(map[string]string, len(display))}
	for k, v := range display {
		m.display[k] = v
	}
	m.renames = append(m.renames, renames...)
	return m
}

// DisplayName implements Lookup
func (m *MapLookup) DisplayName(id string) string {
	if name, ok := m.display[id]; ok {
		return name
	}
	for _, r := range m.renames {
		if strings.HasSuffix(id, r.Suffix) {
			return r.Display
		}
	}
	return id
}

// Identity is a Lookup that returns every identifier unchanged
type Identity struct{}

// DisplayName implements Lookup
func (Identity) DisplayName(id string) string { return id }
