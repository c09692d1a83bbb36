package docstore

import (
	"encoding/json"
	"fmt"
)

// Encode marshals data into a JSON object and stamps it with id.
func Encode(id string, data any) (json.RawMessage, error) {
	var raw []byte
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal document: %w", err)
		}
		raw = b
	}
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}
	idRaw, _ := json.Marshal(id)
	obj["id"] = idRaw
	return json.Marshal(obj)
}

// Merge overlays fields onto an existing JSON object.
func Merge(existing json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(existing, &obj); err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", k, err)
		}
		obj[k] = b
	}
	return json.Marshal(obj)
}

// Decode unmarshals a document into T.
func Decode[T any](doc Document) (T, error) {
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return v, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return v, nil
}

// DecodeAll unmarshals every document, failing on the first bad one.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := Decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// GetAs reads and decodes a single document inside a transaction.
func GetAs[T any](tx Tx, ref Ref) (T, error) {
	doc, err := tx.Get(ref)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](doc)
}

// ListAs reads and decodes a whole collection inside a transaction.
func ListAs[T any](tx Tx, c Collection) ([]T, error) {
	docs, err := tx.List(c)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](docs)
}
