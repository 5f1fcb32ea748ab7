// Package reader produces streams of raw STAC items from files or
// in-memory collections.
//
// File inputs may be newline-delimited JSON, a JSON array of items, or a
// GeoJSON FeatureCollection; the three forms can be mixed across files.
// Inputs with a .gz or .zst extension are decompressed transparently. A
// FileReader is replayable (it re-opens its paths from the start), which is
// what two-pass schema inference requires; a StreamReader over a plain
// io.Reader is one-shot and is rejected by the two-pass path.
package reader

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	gojson "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/geoplex/stacarrow/pkg/errors"
	jsonpool "github.com/geoplex/stacarrow/pkg/json"
)

const readBufferSize = 64 * 1024

// FileReader reads STAC items from one or more file paths in order.
type FileReader struct {
	paths []string
	idx   int
	file  *os.File
	wrap  io.Closer // decompression layer, if any
	dec   *gojson.Decoder
	queue itemQueue
}

// Open creates a FileReader over the given paths. Files are opened lazily,
// one at a time, during reading.
func Open(paths ...string) (*FileReader, error) {
	if len(paths) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "no input paths given")
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "cannot read input").
				WithDetail("path", path)
		}
	}
	return &FileReader{paths: paths}, nil
}

// Read returns the next item, advancing across files as each is exhausted.
// It returns io.EOF once all paths have been consumed.
func (r *FileReader) Read() (map[string]interface{}, error) {
	for {
		if item, ok := r.queue.pop(); ok {
			return item, nil
		}

		if r.dec == nil {
			if r.idx >= len(r.paths) {
				return nil, io.EOF
			}
			if err := r.openNext(); err != nil {
				return nil, err
			}
		}

		var value interface{}
		err := r.dec.Decode(&value)
		if err == io.EOF {
			if closeErr := r.closeCurrent(); closeErr != nil {
				return nil, closeErr
			}
			continue
		}
		if err != nil {
			path := r.paths[r.idx]
			_ = r.closeCurrent()
			return nil, errors.Wrap(err, errors.ErrorTypeMalformedRecord, "invalid JSON input").
				WithDetail("path", path)
		}

		if err := r.queue.push(value); err != nil {
			return nil, err
		}
	}
}

// Reset rewinds the reader to the start of the first path.
func (r *FileReader) Reset() error {
	if err := r.closeCurrent(); err != nil {
		return err
	}
	r.idx = 0
	r.queue = itemQueue{}
	return nil
}

// Close releases the underlying file and decompression resources.
func (r *FileReader) Close() error {
	return r.closeCurrent()
}

func (r *FileReader) openNext() error {
	path := r.paths[r.idx]
	file, err := os.Open(path) //nolint:gosec // G304: caller-controlled input path
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open input").
			WithDetail("path", path)
	}
	r.file = file

	var stream io.Reader = file
	switch filepath.Ext(path) {
	case ".gz":
		gz, err := gzip.NewReader(stream)
		if err != nil {
			_ = file.Close()
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to open gzip input").
				WithDetail("path", path)
		}
		r.wrap = gz
		stream = gz
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(stream)
		if err != nil {
			_ = file.Close()
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to open zstd input").
				WithDetail("path", path)
		}
		wrapped := zr.IOReadCloser()
		r.wrap = wrapped
		stream = wrapped
	}

	r.dec = jsonpool.GetDecoder(bufio.NewReaderSize(stream, readBufferSize))
	return nil
}

func (r *FileReader) closeCurrent() error {
	if r.dec != nil {
		jsonpool.PutDecoder(r.dec)
		r.dec = nil
		r.idx++
	}
	if r.wrap != nil {
		_ = r.wrap.Close()
		r.wrap = nil
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to close input")
		}
	}
	return nil
}

// itemQueue buffers the items unpacked from one decoded JSON value (an
// array or FeatureCollection yields many items per value).
type itemQueue struct {
	items []map[string]interface{}
	pos   int
}

func (q *itemQueue) pop() (map[string]interface{}, bool) {
	if q.pos >= len(q.items) {
		return nil, false
	}
	item := q.items[q.pos]
	q.pos++
	if q.pos == len(q.items) {
		q.items = q.items[:0]
		q.pos = 0
	}
	return item, true
}

// push unpacks one decoded top-level JSON value into queued items: a JSON
// array yields its elements, a FeatureCollection yields its features, any
// other object is a single item.
func (q *itemQueue) push(value interface{}) error {
	switch v := value.(type) {
	case []interface{}:
		for _, elem := range v {
			item, ok := elem.(map[string]interface{})
			if !ok {
				return errors.New(errors.ErrorTypeMalformedRecord, "array element is not an object")
			}
			q.items = append(q.items, item)
		}
	case map[string]interface{}:
		features, ok := v["features"]
		if !ok {
			q.items = append(q.items, v)
			return nil
		}
		elems, ok := features.([]interface{})
		if !ok {
			return errors.New(errors.ErrorTypeMalformedRecord, "features is not an array")
		}
		for _, elem := range elems {
			item, ok := elem.(map[string]interface{})
			if !ok {
				return errors.New(errors.ErrorTypeMalformedRecord, "feature is not an object")
			}
			q.items = append(q.items, item)
		}
	default:
		return errors.Newf(errors.ErrorTypeMalformedRecord, "top-level JSON value is not an item, array, or FeatureCollection")
	}
	return nil
}
