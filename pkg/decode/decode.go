// Package decode converts Arrow record batches of STAC items back into
// item maps and newline-delimited JSON, reversing the normalization the
// conversion pipeline applies: property columns are re-nested under
// "properties", WKB geometry becomes a GeoJSON object, the fixed-size bbox
// list becomes a plain float64 slice, and timestamp columns render as
// RFC 3339 strings.
package decode

import (
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	gojson "github.com/goccy/go-json"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"

	"github.com/geoplex/stacarrow/pkg/errors"
	jsonpool "github.com/geoplex/stacarrow/pkg/json"
	"github.com/geoplex/stacarrow/pkg/stac"
)

// timestampFormat renders timestamp columns at second precision, the form
// STAC common metadata uses.
const timestampFormat = "2006-01-02T15:04:05Z"

// BatchSource is a pull-based sequence of record batches sharing one
// schema. convert.BatchIterator satisfies it.
type BatchSource interface {
	Next() bool
	Batch() arrow.Record
	Err() error
}

// Items converts one record batch back into STAC item maps. Null cells are
// omitted from the items rather than carried as explicit nulls, so a field
// absent from the source record stays absent after a round trip.
func Items(batch arrow.Record) ([]map[string]interface{}, error) {
	schema := batch.Schema()
	items := make([]map[string]interface{}, 0, batch.NumRows())

	for row := 0; row < int(batch.NumRows()); row++ {
		item := make(map[string]interface{}, schema.NumFields())
		var props map[string]interface{}

		for i := 0; i < schema.NumFields(); i++ {
			field := schema.Field(i)
			value, err := columnValue(batch.Column(i), row)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeUnsupportedType, "failed to decode column").
					WithDetail("field", field.Name).
					WithDetail("row", row)
			}
			if value == nil {
				continue
			}

			switch {
			case field.Name == stac.FieldGeometry:
				geom, err := geometryValue(value)
				if err != nil {
					return nil, err
				}
				item[field.Name] = geom
			case field.Name == stac.FieldBBox:
				bbox, err := bboxValue(value)
				if err != nil {
					return nil, err
				}
				item[field.Name] = bbox
			case stac.IsEnvelopeField(field.Name):
				item[field.Name] = value
			default:
				if props == nil {
					props = make(map[string]interface{})
				}
				props[field.Name] = value
			}
		}

		if props != nil {
			item[stac.FieldProperties] = props
		}
		items = append(items, item)
	}

	return items, nil
}

// NDJSON drains src and writes every item as one JSON line.
func NDJSON(w io.Writer, src BatchSource) error {
	enc := gojson.NewEncoder(w)
	for src.Next() {
		items, err := Items(src.Batch())
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := enc.Encode(item); err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile, "failed to write item")
			}
		}
	}
	return src.Err()
}

// geometryValue converts a WKB geometry cell into its GeoJSON object form.
func geometryValue(value interface{}) (map[string]interface{}, error) {
	data, ok := value.([]byte)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedType, "geometry column holds %T, not binary", value)
	}
	geom, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedRecord, "invalid WKB geometry")
	}
	payload, err := jsonpool.Marshal(geojson.NewGeometry(geom))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode GeoJSON geometry")
	}
	var obj map[string]interface{}
	if err := jsonpool.Unmarshal(payload, &obj); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to decode GeoJSON geometry")
	}
	return obj, nil
}

// bboxValue compacts a fixed-size bbox cell into a float64 slice. Null z
// slots, written when a 2D box was encoded into a 3D column, are dropped so
// the box comes back at its original arity.
func bboxValue(value interface{}) ([]float64, error) {
	elems, ok := value.([]interface{})
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedType, "bbox column holds %T, not a list", value)
	}
	bbox := make([]float64, 0, len(elems))
	for _, elem := range elems {
		if elem == nil {
			continue
		}
		f, ok := elem.(float64)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeUnsupportedType, "bbox element is %T, not float64", elem)
		}
		bbox = append(bbox, f)
	}
	if len(bbox) != 4 && len(bbox) != 6 {
		return nil, errors.Newf(errors.ErrorTypeMalformedRecord, "bbox has %d coordinates after decoding", len(bbox))
	}
	return bbox, nil
}

// columnValue extracts one cell as a JSON-ready Go value. Nulls decode as
// nil.
func columnValue(col arrow.Array, row int) (interface{}, error) {
	if col.IsNull(row) {
		return nil, nil
	}

	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(row), nil
	case *array.Int64:
		return c.Value(row), nil
	case *array.Float64:
		return c.Value(row), nil
	case *array.String:
		return c.Value(row), nil
	case *array.Binary:
		data := c.Value(row)
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case *array.Timestamp:
		return time.UnixMicro(int64(c.Value(row))).UTC().Format(timestampFormat), nil
	case *array.FixedSizeList:
		size := int(c.DataType().(*arrow.FixedSizeListType).Len())
		values := c.ListValues()
		start := (c.Offset() + row) * size
		elems := make([]interface{}, 0, size)
		for j := start; j < start+size; j++ {
			v, err := columnValue(values, j)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		return elems, nil
	case *array.List:
		start, end := c.ValueOffsets(row)
		values := c.ListValues()
		elems := make([]interface{}, 0, end-start)
		for j := start; j < end; j++ {
			v, err := columnValue(values, int(j))
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		return elems, nil
	case *array.Struct:
		structType := c.DataType().(*arrow.StructType)
		obj := make(map[string]interface{}, structType.NumFields())
		for j := 0; j < structType.NumFields(); j++ {
			v, err := columnValue(c.Field(j), row)
			if err != nil {
				return nil, err
			}
			if v != nil {
				obj[structType.Field(j).Name] = v
			}
		}
		return obj, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeUnsupportedType, "no JSON form for column type %s", col.DataType())
	}
}
