package stac

import (
	stdjson "encoding/json"

	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"

	"github.com/geoplex/stacarrow/pkg/errors"
	jsonpool "github.com/geoplex/stacarrow/pkg/json"
	"github.com/geoplex/stacarrow/pkg/pool"
)

// Flattened is one STAC Item in column-ready form: property fields promoted
// to the top level, geometry as WKB bytes, bbox as a 4- or 6-element
// float64 slice. The backing map is pooled; call Release once the record
// has been folded into a schema or encoded into a batch.
type Flattened map[string]interface{}

// Release returns the record's backing map to the pool.
func (f Flattened) Release() {
	pool.PutMap(map[string]interface{}(f))
}

// Normalize maps one raw STAC Item into its flat intermediate form.
//
// It fails with a malformed_record error if the required envelope fields
// (id, type) are absent, if geometry is present but not a valid GeoJSON
// geometry object, if bbox does not have 4 or 6 numeric elements, or if a
// property name collides with a top-level envelope key. When bbox is absent
// but geometry is present, the bbox is computed from the geometry's bound.
func Normalize(item map[string]interface{}) (Flattened, error) {
	if err := checkRequired(item, FieldID); err != nil {
		return nil, err
	}
	if err := checkRequired(item, FieldType); err != nil {
		return nil, err
	}

	flat := Flattened(pool.GetMap())

	// Copy envelope fields; geometry and bbox get special treatment below.
	for key, value := range item {
		switch key {
		case FieldProperties, FieldGeometry, FieldBBox:
		default:
			flat[key] = value
		}
	}

	// Promote property fields to the top level.
	if rawProps, ok := item[FieldProperties]; ok && rawProps != nil {
		props, ok := rawProps.(map[string]interface{})
		if !ok {
			flat.Release()
			return nil, errors.New(errors.ErrorTypeMalformedRecord, "properties is not an object").
				WithDetail("item", item[FieldID])
		}
		for name, value := range props {
			if IsEnvelopeField(name) || name == FieldProperties {
				flat.Release()
				return nil, errors.New(errors.ErrorTypeMalformedRecord, "property collides with envelope field").
					WithDetail("field", name).
					WithDetail("item", item[FieldID])
			}
			flat[name] = value
		}
	}

	if rawBBox, ok := item[FieldBBox]; ok && rawBBox != nil {
		bbox, err := normalizeBBox(rawBBox)
		if err != nil {
			flat.Release()
			return nil, err
		}
		flat[FieldBBox] = bbox
	}

	if rawGeom, ok := item[FieldGeometry]; ok && rawGeom != nil {
		if err := normalizeGeometry(flat, rawGeom); err != nil {
			flat.Release()
			return nil, err
		}
	}

	return flat, nil
}

func checkRequired(item map[string]interface{}, field string) error {
	value, ok := item[field]
	if !ok || value == nil {
		return errors.New(errors.ErrorTypeMalformedRecord, "missing required field").
			WithDetail("field", field)
	}
	if s, ok := value.(string); !ok || s == "" {
		return errors.New(errors.ErrorTypeMalformedRecord, "required field is not a non-empty string").
			WithDetail("field", field)
	}
	return nil
}

// normalizeGeometry replaces the GeoJSON geometry object with its WKB
// encoding and derives the bbox from the geometry bound if none was given.
func normalizeGeometry(flat Flattened, rawGeom interface{}) error {
	geomObj, ok := rawGeom.(map[string]interface{})
	if !ok {
		return errors.New(errors.ErrorTypeMalformedRecord, "geometry is not an object").
			WithDetail("item", flat[FieldID])
	}

	data, err := jsonpool.Marshal(geomObj)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeMalformedRecord, "geometry is not serializable").
			WithDetail("item", flat[FieldID])
	}

	parsed, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeMalformedRecord, "invalid GeoJSON geometry").
			WithDetail("item", flat[FieldID])
	}
	geom := parsed.Geometry()

	encoded, err := wkb.Marshal(geom)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeMalformedRecord, "failed to encode geometry as WKB").
			WithDetail("item", flat[FieldID])
	}
	flat[FieldGeometry] = encoded

	if _, ok := flat[FieldBBox]; !ok {
		bound := geom.Bound()
		flat[FieldBBox] = []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]}
	}

	return nil
}

// normalizeBBox converts a decoded bbox value into a 4- or 6-element
// float64 slice.
func normalizeBBox(raw interface{}) ([]float64, error) {
	elems, ok := raw.([]interface{})
	if !ok {
		if v, ok := raw.([]float64); ok && (len(v) == 4 || len(v) == 6) {
			return v, nil
		}
		return nil, errors.New(errors.ErrorTypeMalformedRecord, "bbox is not an array")
	}
	if len(elems) != 4 && len(elems) != 6 {
		return nil, errors.Newf(errors.ErrorTypeMalformedRecord, "bbox must have 4 or 6 elements, has %d", len(elems))
	}

	bbox := make([]float64, len(elems))
	for i, elem := range elems {
		v, ok := ToFloat64(elem)
		if !ok {
			return nil, errors.New(errors.ErrorTypeMalformedRecord, "bbox element is not numeric")
		}
		bbox[i] = v
	}
	return bbox, nil
}

// ToFloat64 converts any JSON-decoded numeric value to float64.
func ToFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case stdjson.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
