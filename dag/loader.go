package dag

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/dagflow/errors"
)

// Format is a persisted graph encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks JSON for .json files and YAML otherwise.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Decode parses data without schema checks.
func Decode(data []byte, format Format) (*Graph, error) {
	var g Graph
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &g)
	case FormatYAML, "":
		err = yaml.Unmarshal(data, &g)
	default:
		return nil, errors.InvalidGraph("unsupported format " + string(format))
	}
	if err != nil {
		if _, ok := errors.AsAppError(err); ok {
			return nil, err
		}
		return nil, errors.InvalidGraph("malformed " + string(format) + " document").WithCause(err)
	}
	return &g, nil
}

// Encode renders g in its persisted form.
func Encode(g *Graph, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(g, "", "  ")
	case FormatYAML, "":
		return yaml.Marshal(g)
	default:
		return nil, errors.InvalidGraph("unsupported format " + string(format))
	}
}

// LoadBytes decodes data and checks it against the schema.
func LoadBytes(data []byte, format Format) (*Graph, error) {
	g, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	if err := CheckSchema(g); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadFile reads a graph document from disk. The format follows the file
// extension.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NotFound("graph file", path).WithCause(err)
	}
	g, err := LoadBytes(data, FormatFromPath(path))
	if err != nil {
		if appErr, ok := errors.AsAppError(err); ok {
			return nil, appErr.WithDetail("file", path)
		}
		return nil, err
	}
	return g, nil
}
