// Package encode builds Arrow record batches from normalized STAC records
// against a finalized schema. Encoding a chunk is all-or-nothing: a record
// with a field path missing from the schema, or a value that cannot be
// coerced into its column's declared type, fails the whole batch.
package encode

import (
	stdjson "encoding/json"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/geoplex/stacarrow/pkg/errors"
	"github.com/geoplex/stacarrow/pkg/stac"
)

// Encoder encodes chunks of normalized records into Arrow record batches
// with a fixed column layout. Every batch produced by one Encoder has the
// identical column set, order and types, so batches can be written
// sequentially without re-validation.
type Encoder struct {
	schema *arrow.Schema
	alloc  memory.Allocator
	names  map[string]struct{}
}

// NewEncoder creates an encoder for the given finalized schema.
func NewEncoder(schema *arrow.Schema) *Encoder {
	names := make(map[string]struct{}, schema.NumFields())
	for _, field := range schema.Fields() {
		names[field.Name] = struct{}{}
	}
	return &Encoder{
		schema: schema,
		alloc:  memory.NewGoAllocator(),
		names:  names,
	}
}

// Schema returns the encoder's target schema.
func (e *Encoder) Schema() *arrow.Schema {
	return e.schema
}

// Encode builds one record batch from a bounded chunk of normalized
// records. Fields absent from a record become nulls in its row. The caller
// owns the returned record and must Release it.
func (e *Encoder) Encode(records []stac.Flattened) (arrow.Record, error) {
	rb := array.NewRecordBuilder(e.alloc, e.schema)
	defer rb.Release()

	for _, record := range records {
		for name := range record {
			if _, ok := e.names[name]; !ok {
				return nil, errors.New(errors.ErrorTypeSchemaMismatch, "record field not present in schema").
					WithDetail("field", name).
					WithDetail("item", record[stac.FieldID])
			}
		}
		for i, field := range e.schema.Fields() {
			if err := appendValue(rb.Field(i), record[field.Name]); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeSchemaMismatch, "failed to encode field").
					WithDetail("field", field.Name).
					WithDetail("item", record[stac.FieldID])
			}
		}
	}

	return rb.NewRecord(), nil
}

// appendValue appends one value to a column builder, coercing it into the
// column's declared type. Coercion follows the widening order: a column
// widened past a value's own type must still accept that value (an int64
// observation in a float64 column, any scalar in a string column).
func appendValue(builder array.Builder, value interface{}) error {
	if value == nil {
		builder.AppendNull()
		return nil
	}

	switch b := builder.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return coerceError(value, "boolean")
		}
		b.Append(v)

	case *array.Int64Builder:
		switch v := value.(type) {
		case bool:
			if v {
				b.Append(1)
			} else {
				b.Append(0)
			}
		case int:
			b.Append(int64(v))
		case int8:
			b.Append(int64(v))
		case int16:
			b.Append(int64(v))
		case int32:
			b.Append(int64(v))
		case int64:
			b.Append(v)
		case uint:
			b.Append(int64(v))
		case uint8:
			b.Append(int64(v))
		case uint16:
			b.Append(int64(v))
		case uint32:
			b.Append(int64(v))
		case uint64:
			b.Append(int64(v))
		case stdjson.Number:
			n, err := v.Int64()
			if err != nil {
				return coerceError(value, "int64")
			}
			b.Append(n)
		default:
			return coerceError(value, "int64")
		}

	case *array.Float64Builder:
		switch v := value.(type) {
		case bool:
			if v {
				b.Append(1)
			} else {
				b.Append(0)
			}
		default:
			f, ok := stac.ToFloat64(value)
			if !ok {
				return coerceError(value, "float64")
			}
			b.Append(f)
		}

	case *array.StringBuilder:
		s, err := scalarString(value)
		if err != nil {
			return err
		}
		b.Append(s)

	case *array.TimestampBuilder:
		s, ok := value.(string)
		if !ok {
			return coerceError(value, "timestamp")
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return coerceError(value, "timestamp")
		}
		b.Append(arrow.Timestamp(ts.UTC().UnixMicro()))

	case *array.BinaryBuilder:
		v, ok := value.([]byte)
		if !ok {
			return coerceError(value, "binary")
		}
		b.Append(v)

	case *array.FixedSizeListBuilder:
		return appendBBox(b, value)

	case *array.ListBuilder:
		elems, ok := value.([]interface{})
		if !ok {
			return coerceError(value, "list")
		}
		b.Append(true)
		vb := b.ValueBuilder()
		for _, elem := range elems {
			if err := appendValue(vb, elem); err != nil {
				return err
			}
		}

	case *array.StructBuilder:
		return appendStruct(b, value)

	default:
		return errors.Newf(errors.ErrorTypeSchemaMismatch, "unsupported column builder %T", builder)
	}

	return nil
}

// appendBBox appends a bounding box into a fixed-size float64 list column.
// A 2D box encoded into a 3D column gets null min-z/max-z slots.
func appendBBox(b *array.FixedSizeListBuilder, value interface{}) error {
	bbox, ok := value.([]float64)
	if !ok {
		return coerceError(value, "bbox")
	}
	listType, ok := b.Type().(*arrow.FixedSizeListType)
	if !ok {
		return errors.Newf(errors.ErrorTypeSchemaMismatch, "unexpected bbox column type %s", b.Type())
	}
	size := int(listType.Len())
	vb := b.ValueBuilder().(*array.Float64Builder)

	switch {
	case len(bbox) == size:
		b.Append(true)
		vb.AppendValues(bbox, nil)
	case len(bbox) == 4 && size == 6:
		b.Append(true)
		vb.Append(bbox[0])
		vb.Append(bbox[1])
		vb.AppendNull()
		vb.Append(bbox[2])
		vb.Append(bbox[3])
		vb.AppendNull()
	default:
		return errors.Newf(errors.ErrorTypeSchemaMismatch, "bbox arity %d does not fit column of size %d", len(bbox), size)
	}
	return nil
}

func appendStruct(b *array.StructBuilder, value interface{}) error {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return coerceError(value, "struct")
	}
	structType, ok := b.Type().(*arrow.StructType)
	if !ok {
		return errors.Newf(errors.ErrorTypeSchemaMismatch, "unexpected struct column type %s", b.Type())
	}

	for name := range obj {
		if _, ok := structType.FieldIdx(name); !ok {
			return errors.New(errors.ErrorTypeSchemaMismatch, "struct field not present in schema").
				WithDetail("field", name)
		}
	}

	b.Append(true)
	for i, field := range structType.Fields() {
		if err := appendValue(b.FieldBuilder(i), obj[field.Name]); err != nil {
			return err
		}
	}
	return nil
}

// scalarString renders any scalar as the string a widened-to-string column
// stores. Structured values never coerce to string.
func scalarString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case stdjson.Number:
		return v.String(), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", coerceError(value, "string")
	}
}

func coerceError(value interface{}, column string) error {
	return errors.Newf(errors.ErrorTypeSchemaMismatch, "cannot coerce value of type %T into %s column", value, column)
}
