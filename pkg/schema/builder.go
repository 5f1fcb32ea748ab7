package schema

import (
	stdjson "encoding/json"
	"sort"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/geoplex/stacarrow/pkg/errors"
	"github.com/geoplex/stacarrow/pkg/stac"
)

// GeometryMetadataKey annotates the geometry column with its GeoArrow
// extension name, matching the encoding GeoParquet readers expect.
const (
	GeometryMetadataKey  = "ARROW:extension:name"
	GeometryExtensionWKB = "geoarrow.wkb"
)

// Builder is an evolving, mergeable model of the target columnar schema: a
// mapping from flattened field path to its inferred type descriptor. The
// model is monotonically non-shrinking; fields are never removed and types
// are never narrowed once widened.
type Builder struct {
	fields map[string]*DataType
}

// NewBuilder creates an empty schema model.
func NewBuilder() *Builder {
	return &Builder{fields: make(map[string]*DataType)}
}

// Observe widens the model in place to account for one normalized record's
// field paths and value types. It fails with an unsupported_type error when
// a value's dynamic type cannot map to any columnar type, or when an
// observation conflicts irreconcilably with the type inferred so far.
func (b *Builder) Observe(record map[string]interface{}) error {
	for name, value := range record {
		observed, err := observeValue(value, stac.IsTemporalField(name))
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeUnsupportedType, "failed to observe field").
				WithDetail("field", name)
		}
		merged, err := LeastUpperBound(b.fields[name], observed)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeUnsupportedType, "conflicting observations for field").
				WithDetail("field", name)
		}
		b.fields[name] = merged
	}
	return nil
}

// Merge folds another model into this one, producing the least upper bound
// of the two under the widening order. Merge order does not affect the
// result.
func (b *Builder) Merge(other *Builder) error {
	for name, t := range other.fields {
		merged, err := LeastUpperBound(b.fields[name], t)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeUnsupportedType, "conflicting observations for field").
				WithDetail("field", name)
		}
		b.fields[name] = merged
	}
	return nil
}

// NumFields returns the number of distinct field paths observed so far.
func (b *Builder) NumFields() int {
	return len(b.fields)
}

// Finalize freezes the model into an immutable Arrow schema. Every column
// is nullable, since no single record is guaranteed to populate every
// field. Columns are ordered deterministically: STAC envelope fields first
// in canonical order, then property fields sorted by name.
func (b *Builder) Finalize() (*arrow.Schema, error) {
	if len(b.fields) == 0 {
		return nil, errors.New(errors.ErrorTypeUnsupportedType, "no records observed, nothing to finalize")
	}

	ordered := make([]string, 0, len(b.fields))
	for _, name := range stac.EnvelopeFields {
		if _, ok := b.fields[name]; ok {
			ordered = append(ordered, name)
		}
	}
	props := make([]string, 0, len(b.fields))
	for name := range b.fields {
		if !stac.IsEnvelopeField(name) {
			props = append(props, name)
		}
	}
	sort.Strings(props)
	ordered = append(ordered, props...)

	fields := make([]arrow.Field, len(ordered))
	for i, name := range ordered {
		field := arrow.Field{
			Name:     name,
			Type:     b.fields[name].arrowType(),
			Nullable: true,
		}
		if name == stac.FieldGeometry {
			field.Metadata = arrow.MetadataFrom(map[string]string{
				GeometryMetadataKey: GeometryExtensionWKB,
			})
		}
		fields[i] = field
	}

	return arrow.NewSchema(fields, nil), nil
}

// observeValue maps one JSON-decoded leaf value to its lattice descriptor.
// temporal marks the well-known STAC timestamp fields, whose string values
// are typed as timestamps when they parse as RFC 3339.
func observeValue(value interface{}, temporal bool) (*DataType, error) {
	switch v := value.(type) {
	case nil:
		return &DataType{Kind: KindNull}, nil
	case bool:
		return &DataType{Kind: KindBool}, nil
	case stdjson.Number:
		if _, err := v.Int64(); err == nil {
			return &DataType{Kind: KindInt64}, nil
		}
		return &DataType{Kind: KindFloat64}, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return &DataType{Kind: KindInt64}, nil
	case float32, float64:
		return &DataType{Kind: KindFloat64}, nil
	case string:
		if temporal {
			if _, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return &DataType{Kind: KindTimestamp}, nil
			}
		}
		return &DataType{Kind: KindString}, nil
	case []byte:
		return &DataType{Kind: KindBinary}, nil
	case []float64:
		return &DataType{Kind: KindBBox, Size: len(v)}, nil
	case []interface{}:
		var elem *DataType
		for _, item := range v {
			observed, err := observeValue(item, false)
			if err != nil {
				return nil, err
			}
			elem, err = LeastUpperBound(elem, observed)
			if err != nil {
				return nil, err
			}
		}
		// An empty list establishes no element type.
		return &DataType{Kind: KindList, Elem: elem}, nil
	case map[string]interface{}:
		fields := make(map[string]*DataType, len(v))
		for name, item := range v {
			observed, err := observeValue(item, false)
			if err != nil {
				return nil, err
			}
			fields[name] = observed
		}
		return &DataType{Kind: KindStruct, Fields: fields}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeUnsupportedType, "no columnar type for value of type %T", value)
	}
}
