// Package dataset defines the raw benchmark dataset wire format, validates it
// against an embedded JSON schema, and loads it from files, HTTP endpoints or
// S3 buckets.
package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDataset is returned when a payload does not match the dataset schema.
var ErrInvalidDataset = errors.New("invalid dataset")

// Dataset is the raw document produced by the benchmark collector.
type Dataset struct {
	Commits []Commit `json:"commits"`
	Tests   []Test   `json:"tests"`
	Results []Result `json:"results"`
	Stats   Stats    `json:"stats"`
}

// Commit is one measured revision in timeline order.
type Commit struct {
	Commit  string `json:"commit"`
	Time    int64  `json:"time"`
	Message string `json:"message"`
}

// Test describes a measured metric.
type Test struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

// Result is the outcome of measuring one test on one commit. Error is the raw
// error payload; any non-null payload marks the measurement as failed.
type Result struct {
	Commit string          `json:"commit"`
	TestID string          `json:"testID"`
	Value  *float64        `json:"value"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Failed reports whether the result carries a non-null error payload.
func (r Result) Failed() bool {
	trimmed := bytes.TrimSpace(r.Error)

	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ErrorText renders the error payload for display. Strings are unquoted,
// anything else is shown as compact JSON.
func (r Result) ErrorText() string {
	if !r.Failed() {
		return ""
	}

	var text string
	if json.Unmarshal(r.Error, &text) == nil {
		return text
	}

	var compact bytes.Buffer
	if json.Compact(&compact, r.Error) != nil {
		return string(r.Error)
	}

	return compact.String()
}

// Fingerprint identifies the dataset content.
func (d *Dataset) Fingerprint() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("fingerprint dataset: %w", err)
	}

	sum := sha256.Sum256(raw)

	return hex.EncodeToString(sum[:8]), nil
}

// Stats is display-only collector bookkeeping.
type Stats struct {
	NumCommits       int    `json:"numCommits"`
	LastCommitTime   string `json:"lastCommitTime"`
	NumCachedCommits int    `json:"numCachedCommits"`
	NumResults       int    `json:"numResults"`
}

// BuiltPercent is the share of commits that have cached builds.
func (s Stats) BuiltPercent() int {
	if s.NumCommits == 0 {
		return 0
	}

	return s.NumCachedCommits * 100 / s.NumCommits
}

// CoveragePercent is the share of (test, commit) pairs that have results.
func (s Stats) CoveragePercent(numTests int) int {
	if numTests == 0 || s.NumCommits == 0 {
		return 0
	}

	return s.NumResults * 100 / (numTests * s.NumCommits)
}

// Format identifies the serialization of a dataset payload.
type Format string

// Supported payload formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromName picks the payload format from a file or object name.
func FormatFromName(name string) Format {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return FormatYAML
	}

	return FormatJSON
}

// Decode reads, validates and decodes a dataset payload.
func Decode(r io.Reader, format Format) (*Dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	doc, err := decodeGeneric(raw, format)
	if err != nil {
		return nil, err
	}

	err = Validate(doc)
	if err != nil {
		return nil, err
	}

	// The generic document is already schema-checked; round-tripping it through
	// JSON gives YAML payloads the same typed decoding as JSON ones.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize dataset: %w", err)
	}

	var ds Dataset

	err = json.Unmarshal(normalized, &ds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}

	return &ds, nil
}

func decodeGeneric(raw []byte, format Format) (any, error) {
	var doc any

	switch format {
	case FormatYAML:
		err := yaml.Unmarshal(raw, &doc)
		if err != nil {
			return nil, fmt.Errorf("%w: yaml: %w", ErrInvalidDataset, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()

		err := dec.Decode(&doc)
		if err != nil {
			return nil, fmt.Errorf("%w: json: %w", ErrInvalidDataset, err)
		}
	}

	return doc, nil
}
