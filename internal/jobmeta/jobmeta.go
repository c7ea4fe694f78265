// Package jobmeta decodes and encodes the JSON sidecar that accompanies every
// queued document.
package jobmeta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lad75020/SendToOneNote/internal/services"
)

// Metadata describes one print job.
type Metadata struct {
	File  string `json:"file"`
	Title string `json:"title"`
	User  string `json:"user"`
	Job   string `json:"job"`
}

const schemaURL = "sidecar.schema.json"

// All four fields must be present and be strings. Values may be empty.
const sidecarSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["file", "title", "user", "job"],
  "properties": {
    "file":  {"type": "string"},
    "title": {"type": "string"},
    "user":  {"type": "string"},
    "job":   {"type": "string"}
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader([]byte(sidecarSchema))); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Decode validates data against the sidecar schema and returns the metadata.
// Every failure matches services.ErrMetadata.
func Decode(data []byte) (Metadata, error) {
	sch, err := schema()
	if err != nil {
		return Metadata{}, services.Wrap(services.ErrMetadata, "metadata", "compile schema", "", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Metadata{}, services.Wrap(services.ErrMetadata, "metadata", "parse", "sidecar is not valid JSON", err)
	}
	if err := sch.Validate(doc); err != nil {
		return Metadata{}, services.Wrap(services.ErrMetadata, "metadata", "validate", "sidecar does not match schema", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, services.Wrap(services.ErrMetadata, "metadata", "decode", "", err)
	}
	return meta, nil
}

// DecodeFile reads and decodes the sidecar at path.
func DecodeFile(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, services.Wrap(services.ErrMetadata, "metadata", "read", path, err)
	}
	return Decode(data)
}

// Encode renders metadata as indented JSON with a trailing newline.
func Encode(meta Metadata) ([]byte, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
