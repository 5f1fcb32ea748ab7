// Package stacarrow converts collections of STAC items into columnar
// Arrow record batches and GeoParquet files.
//
// STAC items are self-describing GeoJSON features whose shape varies
// across catalogs, so a fixed target schema cannot be assumed. The
// conversion pipeline normalizes each item (promoting properties to
// top-level columns and re-encoding geometries as WKB), infers a unified
// Arrow schema across the whole input when none is supplied, and encodes
// records chunk by chunk into batches that all share that schema.
//
// # Packages
//
//   - pkg/stac: item normalization (property promotion, WKB geometry,
//     bbox derivation) and the item source interfaces
//   - pkg/reader: file, stream, and in-memory item sources with NDJSON,
//     JSON array, and FeatureCollection framing plus transparent gzip
//     and zstd decompression
//   - pkg/schema: the type lattice, per-record observation, schema
//     merging, and the inference pass
//   - pkg/encode: Arrow record batch encoding against a fixed schema
//   - pkg/convert: the conversion entry points and the lazy batch
//     iterator
//   - pkg/geoparquet: GeoParquet 1.1 output with "geo" file metadata
//
// # Usage
//
//	it, err := convert.Files([]string{"items.ndjson"}, convert.Options{})
//	if err != nil {
//		return err
//	}
//	defer it.Close()
//	err = geoparquet.WriteFile("items.parquet", it, geoparquet.Options{})
package stacarrow
