// Package geoparquet persists Arrow record batches of STAC items as
// GeoParquet 1.1 files: Parquet with a "geo" file metadata block that
// declares the WKB geometry column and its bbox covering.
package geoparquet

import (
	"io"
	"os"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/geoplex/stacarrow/pkg/errors"
	jsonpool "github.com/geoplex/stacarrow/pkg/json"
	"github.com/geoplex/stacarrow/pkg/stac"
)

const (
	// MetadataKey is the Parquet file metadata key holding the GeoParquet
	// column description.
	MetadataKey = "geo"
	// MetadataVersion is the GeoParquet specification version written.
	MetadataVersion = "1.1.0"
	// EncodingWKB marks the geometry column as WKB-encoded binary.
	EncodingWKB = "WKB"
)

// BatchSource is a pull-based sequence of record batches sharing one
// schema. convert.BatchIterator satisfies it.
type BatchSource interface {
	Schema() *arrow.Schema
	Next() bool
	Batch() arrow.Record
	Err() error
}

// Options configures the Parquet output.
type Options struct {
	// Compression selects the column codec: "snappy" (default), "zstd",
	// "gzip", or "none".
	Compression string
	// Logger receives write progress at debug level. Nil disables logging.
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

type geoMetadata struct {
	Version       string               `json:"version"`
	PrimaryColumn string               `json:"primary_column"`
	Columns       map[string]geoColumn `json:"columns"`
}

type geoColumn struct {
	Encoding      string       `json:"encoding"`
	GeometryTypes []string     `json:"geometry_types"`
	Edges         string       `json:"edges"`
	Covering      *geoCovering `json:"covering,omitempty"`
}

type geoCovering struct {
	BBox geoBBoxCovering `json:"bbox"`
}

type geoBBoxCovering struct {
	Xmin []string `json:"xmin"`
	Ymin []string `json:"ymin"`
	Xmax []string `json:"xmax"`
	Ymax []string `json:"ymax"`
}

// WriteFile drains src into a GeoParquet file at path.
func WriteFile(path string, src BatchSource, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file").
			WithDetail("path", path)
	}
	if err := Write(f, src, opts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close output file").
			WithDetail("path", path)
	}
	return nil
}

// Write drains src into w as GeoParquet. The source's schema gains the
// "geo" file metadata block when it carries a geometry column; without
// one the output is plain Parquet.
func Write(w io.Writer, src BatchSource, opts Options) error {
	codec, err := codecFor(opts.Compression)
	if err != nil {
		return err
	}

	sch, err := withGeoMetadata(src.Schema())
	if err != nil {
		return err
	}

	pool := memory.NewGoAllocator()
	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(pool),
	)

	fw, err := pqarrow.NewFileWriter(sch, w, props, arrowProps)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create Parquet writer")
	}

	logger := opts.logger()
	batches := 0
	rows := int64(0)
	for src.Next() {
		batch := src.Batch()
		if err := fw.Write(batch); err != nil {
			fw.Close()
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record batch")
		}
		batches++
		rows += batch.NumRows()
	}
	if err := src.Err(); err != nil {
		fw.Close()
		return err
	}

	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to finalize Parquet file")
	}

	logger.Debug("wrote geoparquet output",
		zap.Int("batches", batches),
		zap.Int64("rows", rows))
	return nil
}

func codecFor(name string) (compress.Compression, error) {
	switch name {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, errors.Newf(errors.ErrorTypeConfig,
			"unsupported compression codec: %s", name)
	}
}

// withGeoMetadata returns sch extended with the "geo" file metadata. The
// bbox covering is advertised only when the schema has a bbox column.
func withGeoMetadata(sch *arrow.Schema) (*arrow.Schema, error) {
	if len(sch.FieldIndices(stac.FieldGeometry)) == 0 {
		return sch, nil
	}

	column := geoColumn{
		Encoding:      EncodingWKB,
		GeometryTypes: []string{},
		Edges:         "planar",
	}
	if len(sch.FieldIndices(stac.FieldBBox)) > 0 {
		column.Covering = &geoCovering{
			BBox: geoBBoxCovering{
				Xmin: []string{stac.FieldBBox, "xmin"},
				Ymin: []string{stac.FieldBBox, "ymin"},
				Xmax: []string{stac.FieldBBox, "xmax"},
				Ymax: []string{stac.FieldBBox, "ymax"},
			},
		}
	}

	buf := jsonpool.GetBuffer()
	defer jsonpool.PutBuffer(buf)
	err := gojson.NewEncoder(buf).Encode(geoMetadata{
		Version:       MetadataVersion,
		PrimaryColumn: stac.FieldGeometry,
		Columns:       map[string]geoColumn{stac.FieldGeometry: column},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode geo metadata")
	}
	payload := strings.TrimRight(buf.String(), "\n")

	md := sch.Metadata()
	keys := append(append([]string{}, md.Keys()...), MetadataKey)
	values := append(append([]string{}, md.Values()...), payload)
	merged := arrow.NewMetadata(keys, values)
	return arrow.NewSchema(sch.Fields(), &merged), nil
}
