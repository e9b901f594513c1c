package descfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/fmha/internal/fmha"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the document format from a file extension. Anything that
// is not .json is read as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads and converts the descriptor document at path.
func Load(path string) (fmha.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmha.Descriptor{}, err
	}
	desc, err := Decode(data, FormatFor(path))
	if err != nil {
		return fmha.Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

// Decode parses one descriptor document. Unknown fields are rejected.
func Decode(data []byte, format Format) (fmha.Descriptor, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return fmha.Descriptor{}, fmt.Errorf("decode json descriptor: %w", err)
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return fmha.Descriptor{}, fmt.Errorf("decode yaml descriptor: %w", err)
		}
	default:
		return fmha.Descriptor{}, fmt.Errorf("unknown descriptor format %q", format)
	}
	return doc.Descriptor()
}

// Encode writes desc as a document in format.
func Encode(desc fmha.Descriptor, format Format) ([]byte, error) {
	doc := FromDescriptor(desc)
	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML, "":
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unknown descriptor format %q", format)
	}
}
