// Package schema loads the static index definition the pipeline provisions.
//
// Two layouts are accepted. An OpenSearch-style mapping:
//
//	{"mappings": {"properties": {"name": {"type": "text"},
//	  "description_vector": {"type": "knn_vector", "dimension": 3072,
//	    "method": {"name": "hnsw", "space_type": "cosinesimil"}}}}}
//
// and a native field list:
//
//	{"fields": [{"name": "name", "type": "text"},
//	  {"name": "description_vector", "type": "vector", "dim": 3072, "distance": "COSINE"}]}
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/domain"
)

// templateName is replaced with the real index name by db.IndexDefinition.Bind.
const templateName = "template"

type document struct {
	Mappings *struct {
		Properties map[string]property `json:"properties"`
	} `json:"mappings"`
	Fields []nativeField `json:"fields"`
}

type property struct {
	Type      string `json:"type"`
	Dimension int    `json:"dimension"`
	Method    *struct {
		Name       string `json:"name"`
		SpaceType  string `json:"space_type"`
		Parameters struct {
			M              int `json:"m"`
			EFConstruction int `json:"ef_construction"`
		} `json:"parameters"`
	} `json:"method"`
}

type nativeField struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Dim            int    `json:"dim"`
	Distance       string `json:"distance"`
	Algorithm      string `json:"algorithm"`
	M              int    `json:"m"`
	EFConstruction int    `json:"ef_construction"`
}

// Load reads and parses a definition file.
func Load(path string) (*db.IndexDefinition, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read index schema %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse index schema %s: %w", path, err)
	}
	return def, nil
}

// Parse converts a definition document into an FT index definition over JSON documents.
func Parse(data []byte) (*db.IndexDefinition, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSchema, err)
	}

	b := db.NewIndex(templateName)
	var err error
	switch {
	case doc.Mappings != nil && len(doc.Mappings.Properties) > 0:
		err = fromMapping(b, doc.Mappings.Properties)
	case len(doc.Fields) > 0:
		err = fromFields(b, doc.Fields)
	default:
		err = errors.New("neither mappings.properties nor fields declared")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSchema, err)
	}

	def, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSchema, err)
	}
	return def, nil
}

func fromMapping(b *db.IndexBuilder, props map[string]property) error {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := props[name]
		switch strings.ToLower(p.Type) {
		case "text", "match_only_text":
			b.Text(name)
		case "keyword", "boolean":
			b.Tag(name)
		case "integer", "long", "short", "byte", "float", "double", "half_float", "scaled_float":
			b.Numeric(name)
		case "knn_vector", "dense_vector":
			algo, space := "hnsw", ""
			var m, ef int
			if p.Method != nil {
				if p.Method.Name != "" {
					algo = p.Method.Name
				}
				space = p.Method.SpaceType
				m, ef = p.Method.Parameters.M, p.Method.Parameters.EFConstruction
			}
			metric, err := spaceToMetric(space)
			if err != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
			addVector(b, name, p.Dimension, algo, metric, m, ef)
		case "object", "nested", "":
			// not indexed; stored verbatim in the JSON document
		default:
			return fmt.Errorf("field %s: unsupported type %q", name, p.Type)
		}
	}
	return nil
}

func fromFields(b *db.IndexBuilder, fields []nativeField) error {
	for _, f := range fields {
		switch strings.ToLower(f.Type) {
		case "text":
			b.Text(f.Name)
		case "tag":
			b.Tag(f.Name)
		case "numeric":
			b.Numeric(f.Name)
		case "vector":
			metric := db.DistanceMetric(strings.ToUpper(f.Distance))
			switch metric {
			case "":
				metric = db.DistanceCosine
			case db.DistanceCosine, db.DistanceL2, db.DistanceIP:
			default:
				return fmt.Errorf("field %s: unsupported distance %q", f.Name, f.Distance)
			}
			addVector(b, f.Name, f.Dim, f.Algorithm, metric, f.M, f.EFConstruction)
		default:
			return fmt.Errorf("field %s: unsupported type %q", f.Name, f.Type)
		}
	}
	return nil
}

func addVector(b *db.IndexBuilder, name string, dim int, algo string, metric db.DistanceMetric, m, ef int) {
	if strings.EqualFold(algo, string(db.VectorFlat)) {
		b.VectorFlat(name, dim, metric)
		return
	}
	b.VectorHNSW(name, dim, metric, m, ef)
}

func spaceToMetric(space string) (db.DistanceMetric, error) {
	switch strings.ToLower(space) {
	case "", "cosinesimil", "cosine":
		return db.DistanceCosine, nil
	case "l2":
		return db.DistanceL2, nil
	case "innerproduct", "dot_product":
		return db.DistanceIP, nil
	default:
		return "", fmt.Errorf("unsupported space_type %q", space)
	}
}

// Default returns the catalog definition used when no schema file is configured.
func Default(dim int) *db.IndexDefinition {
	return db.NewIndex(templateName).
		Text(domain.NameField).
		Text(domain.DescriptionField).
		Tag("category").
		Tag("brand").
		VectorHNSW(domain.VectorField, dim, db.DistanceCosine, 0, 0).
		MustBuild()
}

// CheckVector verifies the definition declares the vector field with the expected dimensionality.
func CheckVector(def *db.IndexDefinition, field string, dim int) error {
	f, ok := def.VectorField(field)
	if !ok {
		return fmt.Errorf("%w: vector field %q not declared", domain.ErrInvalidSchema, field)
	}
	if f.VectorDim != dim {
		return fmt.Errorf("%w: field %q has DIM %d, embeddings have %d",
			domain.ErrInvalidSchema, field, f.VectorDim, dim)
	}
	return nil
}
