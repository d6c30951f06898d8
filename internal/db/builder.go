package db

import "strings"

// IndexBuilder is a fluent builder for FT index definitions over JSON documents.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts building an FT index definition stored ON JSON.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{
		def: IndexDefinition{
			Name:        name,
			StorageType: StorageJSON,
		},
	}
}

// Prefix adds key prefixes to the index.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Numeric adds a NUMERIC field for the top-level document attribute.
func (b *IndexBuilder) Numeric(attr string) *IndexBuilder {
	return b.add(IndexField{Name: jsonPath(attr), Alias: attr, Type: IndexFieldNumeric})
}

// Tag adds a TAG field for the top-level document attribute.
func (b *IndexBuilder) Tag(attr string) *IndexBuilder {
	return b.add(IndexField{Name: jsonPath(attr), Alias: attr, Type: IndexFieldTag})
}

// Text adds a TEXT field for the top-level document attribute.
func (b *IndexBuilder) Text(attr string) *IndexBuilder {
	return b.add(IndexField{Name: jsonPath(attr), Alias: attr, Type: IndexFieldText})
}

// VectorFlat adds a VECTOR field with FLAT algorithm.
func (b *IndexBuilder) VectorFlat(attr string, dim int, distance DistanceMetric) *IndexBuilder {
	return b.add(IndexField{
		Name:           jsonPath(attr),
		Alias:          attr,
		Type:           IndexFieldVector,
		VectorAlgo:     VectorFlat,
		VectorDim:      dim,
		VectorDistance: distance,
	})
}

// VectorHNSW adds a VECTOR field with HNSW algorithm.
func (b *IndexBuilder) VectorHNSW(attr string, dim int, distance DistanceMetric, m, efConstruct int) *IndexBuilder {
	return b.add(IndexField{
		Name:              jsonPath(attr),
		Alias:             attr,
		Type:              IndexFieldVector,
		VectorAlgo:        VectorHNSW,
		VectorDim:         dim,
		VectorDistance:    distance,
		VectorM:           m,
		VectorEFConstruct: efConstruct,
	})
}

func (b *IndexBuilder) add(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Build validates and returns the index definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}

// MustBuild calls Build and panics on error.
func (b *IndexBuilder) MustBuild() *IndexDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

func jsonPath(attr string) string {
	if strings.HasPrefix(attr, "$") {
		return attr
	}
	return "$." + attr
}

// String returns a debug representation resembling the FT.CREATE command.
func (idx *IndexDefinition) String() string {
	parts := []string{"FT.CREATE", idx.Name}
	if idx.StorageType != "" {
		parts = append(parts, "ON", string(idx.StorageType))
	}
	if len(idx.Prefixes) > 0 {
		parts = append(parts, "PREFIX")
		parts = append(parts, idx.Prefixes...)
	}
	parts = append(parts, "SCHEMA")
	for i := range idx.Fields {
		f := &idx.Fields[i]
		parts = append(parts, f.Name)
		if f.Alias != "" {
			parts = append(parts, "AS", f.Alias)
		}
		switch f.Type {
		case IndexFieldTag:
			parts = append(parts, "TAG")
		case IndexFieldNumeric:
			parts = append(parts, "NUMERIC")
		case IndexFieldText:
			parts = append(parts, "TEXT")
		case IndexFieldVector:
			parts = append(parts, "VECTOR", string(idx.Fields[i].VectorAlgo))
		}
	}
	return strings.Join(parts, " ")
}
