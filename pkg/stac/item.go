// Package stac models STAC Items and their normalized, column-ready form.
//
// A STAC Item is a JSON document with a fixed envelope (id, geometry, bbox,
// properties, assets, links) and dataset-specific fields nested under
// "properties". Normalization promotes the property fields to the top level,
// replaces the GeoJSON geometry with its WKB encoding and normalizes the
// bounding box to a fixed-arity float64 slice, producing the flat
// representation the schema and encoding layers operate on.
package stac

// STAC envelope field names.
const (
	FieldType           = "type"
	FieldStacVersion    = "stac_version"
	FieldStacExtensions = "stac_extensions"
	FieldID             = "id"
	FieldGeometry       = "geometry"
	FieldBBox           = "bbox"
	FieldCollection     = "collection"
	FieldLinks          = "links"
	FieldAssets         = "assets"
	FieldProperties     = "properties"
)

// EnvelopeFields lists the top-level STAC Item keys, excluding "properties",
// in canonical column order.
var EnvelopeFields = []string{
	FieldType,
	FieldStacVersion,
	FieldStacExtensions,
	FieldID,
	FieldGeometry,
	FieldBBox,
	FieldCollection,
	FieldLinks,
	FieldAssets,
}

var envelopeSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(EnvelopeFields))
	for _, name := range EnvelopeFields {
		set[name] = struct{}{}
	}
	return set
}()

// IsEnvelopeField reports whether name is a fixed top-level STAC Item key.
func IsEnvelopeField(name string) bool {
	_, ok := envelopeSet[name]
	return ok
}

// TemporalFields is the set of STAC common-metadata fields whose string
// values carry RFC 3339 timestamps and are eligible for timestamp typing.
var TemporalFields = map[string]struct{}{
	"datetime":       {},
	"start_datetime": {},
	"end_datetime":   {},
	"created":        {},
	"updated":        {},
	"expires":        {},
	"published":      {},
	"unpublished":    {},
}

// IsTemporalField reports whether name is a well-known STAC timestamp field.
func IsTemporalField(name string) bool {
	_, ok := TemporalFields[name]
	return ok
}
