package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Field names shared by the indexing and query paths.
const (
	DescriptionField = "description"
	VectorField      = "description_vector"
	NameField        = "name"
)

// Document is one source record. Fields are kept verbatim; only VectorField is added.
type Document map[string]any

// ParseDocument decodes a single JSON object line.
// Numbers stay json.Number so they are written back exactly as read.
func ParseDocument(line []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidDocument)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalidDocument)
	}
	return doc, nil
}

// Description returns the embedding source text.
// A missing, non-string, or blank description yields *MissingFieldError.
func (d Document) Description() (string, error) {
	raw, ok := d[DescriptionField]
	if !ok {
		return "", &MissingFieldError{Field: DescriptionField}
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", &MissingFieldError{Field: DescriptionField}
	}
	return s, nil
}

// DropVector removes any VectorField carried over from the source.
func (d Document) DropVector() {
	delete(d, VectorField)
}

// SetVector attaches the embedding under VectorField.
func (d Document) SetVector(vec []float32) {
	d[VectorField] = vec
}

// HasVector reports whether VectorField is present.
func (d Document) HasVector() bool {
	_, ok := d[VectorField]
	return ok
}

// StringField returns a field rendered as a string, or "" when absent.
func (d Document) StringField(name string) string {
	v, ok := d[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Marshal encodes the document as JSON for storage.
func (d Document) Marshal() ([]byte, error) {
	data, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}
