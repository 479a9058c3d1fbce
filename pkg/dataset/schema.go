package dataset

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

// maxReportedViolations caps how many schema violations an error message lists.
const maxReportedViolations = 5

// Schema returns the embedded dataset JSON schema.
func Schema() []byte {
	return schemaJSON
}

// Validate checks a generically decoded document against the dataset schema.
func Validate(doc any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("%w: schema: %w", ErrInvalidDataset, err)
	}

	if result.Valid() {
		return nil
	}

	return &ValidationError{Violations: violations(result.Errors())}
}

// Violation is a single schema mismatch.
type Violation struct {
	Field       string
	Description string
}

// ValidationError lists the schema violations of a payload.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, min(len(e.Violations), maxReportedViolations))

	for i, v := range e.Violations {
		if i == maxReportedViolations {
			break
		}

		parts = append(parts, v.Field+": "+v.Description)
	}

	msg := fmt.Sprintf("%s: %s", ErrInvalidDataset, strings.Join(parts, "; "))
	if extra := len(e.Violations) - maxReportedViolations; extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", extra)
	}

	return msg
}

// Unwrap lets callers match the error with errors.Is(err, ErrInvalidDataset).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidDataset
}

func violations(errs []gojsonschema.ResultError) []Violation {
	out := make([]Violation, len(errs))

	for i, verr := range errs {
		out[i] = Violation{Field: verr.Field(), Description: verr.Description()}
	}

	return out
}
