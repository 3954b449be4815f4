package content

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/dungeonforge/internal/layer"
)

// Line record field names.
const (
	fieldText   = "text"
	fieldParams = "params"
)

// DecodeDocument parses YAML or JSON bytes into generic values: mappings
// become map[string]any, sequences []any.
//
// Postcondition: Returns nil for an empty document.
func DecodeDocument(data []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	var v any
	if err := doc.Content[0].Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeLines parses a lines document into an ordered list of
// {id, text, params} records, keeping authored order.
//
// The document is either a mapping from line ID to a text string or a
// {text, params} mapping, or a list of records that already carry an id.
//
// Postcondition: Returns *layer.SchemaMismatchError when the document is
// neither a mapping nor a list.
func DecodeLines(layerName string, data []byte) ([]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]

	switch root.Kind {
	case yaml.SequenceNode:
		var list []any
		if err := root.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	case yaml.MappingNode:
	default:
		return nil, &layer.SchemaMismatchError{Layer: layerName, Path: "lines", Want: "mapping", Got: nodeKind(root)}
	}

	out := make([]any, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		rec, err := lineRecord(layerName, key.Value, val)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func lineRecord(layerName, id string, val *yaml.Node) (map[string]any, error) {
	rec := map[string]any{layer.IDField: id}
	switch val.Kind {
	case yaml.ScalarNode:
		if val.Tag != "!!null" {
			rec[fieldText] = val.Value
		}
	case yaml.MappingNode:
		var body map[string]any
		if err := val.Decode(&body); err != nil {
			return nil, fmt.Errorf("line %q: %w", id, err)
		}
		for k, v := range body {
			if k == layer.IDField {
				continue
			}
			rec[k] = v
		}
	default:
		return nil, &layer.SchemaMismatchError{
			Layer: layerName,
			Path:  "lines." + id,
			Want:  "text or mapping",
			Got:   nodeKind(val),
		}
	}
	return rec, nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	default:
		return "scalar"
	}
}
