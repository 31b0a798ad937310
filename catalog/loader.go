package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// SchemaError is a single schema violation found while parsing a catalog
// document. Path is the CUE path of the offending field.
type SchemaError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e SchemaError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseError aggregates every schema violation in a document.
type ParseError struct {
	Errors []SchemaError
}

func (e *ParseError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("catalog schema: %s", e.Errors[0].Error())
	}
	return fmt.Sprintf("catalog schema: %d violations (first: %s)", len(e.Errors), e.Errors[0].Error())
}

// LoadFile reads and parses a YAML catalog document from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes a YAML catalog document, validating it against the embedded
// CUE schema first. Schema violations come back as a *ParseError carrying
// every finding, not just the first.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("parse catalog: empty document")
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &cat, nil
}

// validateSchema unifies the document with #Catalog and collects all errors.
func validateSchema(raw map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if schema.Err() != nil {
		// The schema is embedded; failure here is a build defect.
		return fmt.Errorf("compile catalog schema: %w", schema.Err())
	}

	def := schema.LookupPath(cue.ParsePath("#Catalog"))
	if !def.Exists() {
		return fmt.Errorf("catalog schema: #Catalog definition missing")
	}

	doc := ctx.Encode(raw)
	if doc.Err() != nil {
		return fmt.Errorf("encode catalog document: %w", doc.Err())
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		perr := &ParseError{}
		for _, e := range cueerrors.Errors(err) {
			msg, args := e.Msg()
			perr.Errors = append(perr.Errors, SchemaError{
				Path:    strings.Join(e.Path(), "."),
				Message: fmt.Sprintf(msg, args...),
			})
		}
		return perr
	}
	return nil
}
