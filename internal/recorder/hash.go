package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// fieldSep tags the hash input fields so adjacent fields can never collide.
const fieldSep = "\x1f"

// RequestHash computes the deterministic identity of a provider request:
// the prompt, a structural description of the output schema, provider
// options with keys sorted, and tool definitions. Equal inputs produce equal
// hashes regardless of object key ordering.
func RequestHash(prompt string, schema interface{}, options map[string]interface{}, tools interface{}) (string, error) {
	var b strings.Builder
	b.WriteString("prompt" + fieldSep + prompt)

	shape, err := schemaShape(schema)
	if err != nil {
		return "", fmt.Errorf("describe schema: %w", err)
	}
	b.WriteString(fieldSep + "schema" + fieldSep + shape)

	opts, err := sortedOptions(options)
	if err != nil {
		return "", fmt.Errorf("canonicalize options: %w", err)
	}
	b.WriteString(fieldSep + "options" + fieldSep + opts)

	toolsJSON, err := canonicalJSON(tools)
	if err != nil {
		return "", fmt.Errorf("canonicalize tools: %w", err)
	}
	b.WriteString(fieldSep + "tools" + fieldSep + toolsJSON)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// schemaShape renders the structural type of a schema value: objects list
// their keys' shapes in sorted order, arrays describe their first element.
// Values are reduced to their JSON type so two schemas with the same shape
// hash identically.
func schemaShape(schema interface{}) (string, error) {
	if schema == nil {
		return "null", nil
	}
	norm, err := normalize(schema)
	if err != nil {
		return "", err
	}
	return shapeOf(norm), nil
}

func shapeOf(v interface{}) string {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + shapeOf(t[k])
		}
		return "object{" + strings.Join(parts, ",") + "}"
	case []interface{}:
		if len(t) == 0 {
			return "array[]"
		}
		return "array[" + shapeOf(t[0]) + "]"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", t)
	}
}

func sortedOptions(options map[string]interface{}) (string, error) {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		val, err := canonicalJSON(options[k])
		if err != nil {
			return "", err
		}
		parts[i] = k + "=" + val
	}
	return strings.Join(parts, ","), nil
}

// canonicalJSON marshals a value with map keys sorted, independent of the
// input's key ordering. Round-tripping through interface{} lets
// encoding/json's sorted map marshalling do the work.
func canonicalJSON(v interface{}) (string, error) {
	if v == nil {
		return "null", nil
	}
	norm, err := normalize(v)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(norm)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var norm interface{}
	if err := json.Unmarshal(raw, &norm); err != nil {
		return nil, err
	}
	return norm, nil
}
