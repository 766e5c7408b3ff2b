package artifacts

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"evalview/internal/errors"
	"evalview/internal/paths"
)

//go:embed schema/artifact.schema.json
var baseSchema []byte

// Skip reasons reported in diagnostics
const (
	ReasonRead   = "read"
	ReasonParse  = "parse"
	ReasonSchema = "schema"
	ReasonEmpty  = "empty"
)

// Options names the record fields and the file name marker
type Options struct {
	Marker        string
	IdentityField string
	// KeyFields are tried in order; the first non-empty value is the key
	KeyFields    []string
	PayloadField string
}

// Record is the part of an artifact record reconciliation cares about.
// Empty strings mean the field was absent.
type Record struct {
	Index    int
	Identity string
	Key      string
	Payload  string
}

// Artifact is one parsed artifact file
type Artifact struct {
	Path    string
	Slug    string
	Matched bool // file name followed the artifact grammar
	Stamp   time.Time
	Records []Record
	// Identities counts the distinct identity values seen in the file
	Identities map[string]int
	// NonObject counts array elements that are not records and were skipped
	NonObject int
}

// Diagnostic explains why a file was skipped
type Diagnostic struct {
	File   string           `json:"file"`
	Code   errors.ErrorCode `json:"code,omitempty"`
	Reason string           `json:"reason"`
	Detail string           `json:"detail"`
}

// Result is the outcome of a directory scan
type Result struct {
	Files       int
	Artifacts   []Artifact
	Diagnostics []Diagnostic
}

// Malformed returns the diagnostics carrying MALFORMED_ARTIFACT
func (r *Result) Malformed() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Code == errors.MalformedArtifact {
			out = append(out, d)
		}
	}
	return out
}

// Scanner reads artifact directories
type Scanner struct {
	opts   Options
	schema *gojsonschema.Schema
	logger *slog.Logger
}

// NewScanner compiles the artifact schema for the configured field names
func NewScanner(opts Options, logger *slog.Logger) (*Scanner, error) {
	if opts.IdentityField == "" || opts.PayloadField == "" || len(opts.KeyFields) == 0 {
		return nil, errors.Newf(errors.InvalidConfig, "identity, key and payload field names are required")
	}

	schema, err := compileSchema(opts)
	if err != nil {
		return nil, errors.New(errors.InternalError, "failed to compile artifact schema", err)
	}
	return &Scanner{opts: opts, schema: schema, logger: logger}, nil
}

// compileSchema adds the configured field names to the embedded base schema
func compileSchema(opts Options) (*gojsonschema.Schema, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(baseSchema, &doc); err != nil {
		return nil, err
	}

	items := doc["items"].(map[string]interface{})
	props := items["properties"].(map[string]interface{})
	props[opts.IdentityField] = map[string]interface{}{"type": []string{"string", "null"}}
	for _, k := range opts.KeyFields {
		props[k] = map[string]interface{}{"type": []string{"string", "integer", "null"}}
	}
	props[opts.PayloadField] = map[string]interface{}{"type": []string{"string", "null"}}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
}

// Scan reads every *.json file in dir in lexical order. Files that cannot be
// read, parsed or validated are skipped with a diagnostic; only a missing
// directory is an error.
func (s *Scanner) Scan(ctx context.Context, dir string) (*Result, error) {
	if err := paths.RequireDir(dir); err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Strings(files)

	res := &Result{Files: len(files)}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		art, diag := s.readFile(path)
		if diag != nil {
			s.logger.Warn("Skipping artifact",
				"file", diag.File,
				"reason", diag.Reason,
				"detail", diag.Detail,
			)
			res.Diagnostics = append(res.Diagnostics, *diag)
			continue
		}
		res.Artifacts = append(res.Artifacts, *art)
	}

	s.logger.Info("Scanned artifacts",
		"dir", dir,
		"files", res.Files,
		"parsed", len(res.Artifacts),
		"skipped", len(res.Diagnostics),
	)
	return res, nil
}

func (s *Scanner) readFile(path string) (*Artifact, *Diagnostic) {
	name := filepath.Base(path)
	malformed := func(reason, detail string) *Diagnostic {
		return &Diagnostic{File: name, Code: errors.MalformedArtifact, Reason: reason, Detail: detail}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, malformed(ReasonRead, err.Error())
	}

	var items []interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		if !json.Valid(data) {
			return nil, malformed(ReasonParse, err.Error())
		}
		// Well-formed JSON of the wrong shape, e.g. a top-level object.
		if msgs := s.validate(data); len(msgs) > 0 {
			return nil, malformed(ReasonSchema, strings.Join(msgs, "; "))
		}
		return nil, malformed(ReasonParse, err.Error())
	}
	if msgs := s.validate(data); len(msgs) > 0 {
		return nil, malformed(ReasonSchema, strings.Join(msgs, "; "))
	}
	if len(items) == 0 {
		return nil, &Diagnostic{File: name, Reason: ReasonEmpty, Detail: "artifact holds no records"}
	}

	slug, matched := DeriveSlug(name, s.opts.Marker)
	art := &Artifact{
		Path:       path,
		Slug:       slug,
		Matched:    matched,
		Identities: make(map[string]int),
	}
	if matched {
		if stamp, err := ParseStamp(Prefix(name)); err == nil {
			art.Stamp = stamp
		} else {
			s.logger.Debug("Artifact prefix is not a timestamp", "file", name)
		}
	}

	for i, elem := range items {
		item, ok := elem.(map[string]interface{})
		if !ok {
			art.NonObject++
			continue
		}
		rec := Record{
			Index:    i,
			Identity: stringField(item, s.opts.IdentityField),
			Payload:  stringField(item, s.opts.PayloadField),
		}
		for _, k := range s.opts.KeyFields {
			if rec.Key = stringField(item, k); rec.Key != "" {
				break
			}
		}
		if rec.Identity != "" {
			art.Identities[rec.Identity]++
		}
		art.Records = append(art.Records, rec)
	}
	if len(art.Records) == 0 {
		return nil, malformed(ReasonSchema, "no element of the array is a JSON object")
	}
	if art.NonObject > 0 {
		s.logger.Warn("Skipping non-object records", "file", name, "count", art.NonObject)
	}
	return art, nil
}

// validate returns schema violations, or nil when data is valid
func (s *Scanner) validate(data []byte) []string {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return []string{err.Error()}
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return msgs
}

func stringField(item map[string]interface{}, field string) string {
	switch v := item[field].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}
