// Package convert is the public entry point for turning STAC items into
// Arrow record batches with a uniform schema.
//
// When a schema is supplied, the input is read once and encoded chunk by
// chunk. When no schema is supplied, the source is first consumed in full
// by the schema inference pass and then re-read for encoding (two-pass
// mode), which requires a replayable source and doubles total input I/O.
// An in-memory collection with no schema is materialized into one single
// batch instead of being chunked, since chunking without a known shared
// schema could let a late record break the uniform-schema guarantee.
package convert

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/geoplex/stacarrow/pkg/encode"
	"github.com/geoplex/stacarrow/pkg/errors"
	"github.com/geoplex/stacarrow/pkg/reader"
	"github.com/geoplex/stacarrow/pkg/schema"
	"github.com/geoplex/stacarrow/pkg/stac"
)

const (
	// DefaultItemChunkSize is the default chunk size for in-memory inputs.
	DefaultItemChunkSize = 8192
	// DefaultFileChunkSize is the default chunk size for file inputs,
	// larger because file reads amortize better.
	DefaultFileChunkSize = 65536
)

// Options configures a conversion run.
type Options struct {
	// Schema is the target schema. When nil, it is inferred with a full
	// pass over the input before any batch is produced.
	Schema *arrow.Schema
	// ChunkSize bounds the number of records per batch. Zero selects the
	// entry point's default.
	ChunkSize int
	// Logger receives conversion progress at debug level. Nil disables
	// logging.
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Items converts an in-memory item collection into batches. With a schema
// the collection is encoded in chunks; without one the whole collection
// becomes a single batch after inference.
func Items(items []map[string]interface{}, opts Options) (*BatchIterator, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultItemChunkSize
	}
	src := reader.Items(items)

	if opts.Schema == nil {
		inferred, err := schema.Infer(src, opts.ChunkSize, opts.Logger)
		if err != nil {
			return nil, err
		}
		if err := src.Reset(); err != nil {
			return nil, err
		}
		opts.Schema = inferred
		// Single contiguous batch; no chunking without a caller-supplied
		// schema on the in-memory path.
		opts.ChunkSize = src.Len()
	}

	return newIterator(src, opts), nil
}

// Files converts one or more JSON files (NDJSON, array, or
// FeatureCollection; optionally gzip- or zstd-compressed) into batches.
func Files(paths []string, opts Options) (*BatchIterator, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultFileChunkSize
	}
	src, err := reader.Open(paths...)
	if err != nil {
		return nil, err
	}
	return Stream(src, opts)
}

// Stream converts items from an arbitrary source into batches. Without a
// supplied schema the source must be replayable: inference consumes it in
// full before encoding re-reads it. A non-replayable source fails fast
// with a non_replayable_source error before any records are consumed.
func Stream(src stac.ItemReader, opts Options) (*BatchIterator, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultItemChunkSize
	}

	if opts.Schema == nil {
		replayable, ok := src.(stac.ReplayableReader)
		if !ok {
			return nil, errors.New(errors.ErrorTypeNonReplayableSource,
				"schema inference requires a replayable source; supply a schema or a re-enumerable input")
		}
		inferred, err := schema.Infer(replayable, opts.ChunkSize, opts.Logger)
		if err != nil {
			return nil, err
		}
		if err := replayable.Reset(); err != nil {
			return nil, err
		}
		opts.Schema = inferred
	}

	return newIterator(src, opts), nil
}

// BatchIterator is a lazy, pull-based sequence of record batches. No batch
// is computed until requested, so a consumer that stops early also stops
// input consumption. Every batch in one iteration has the identical column
// set, order, and types.
//
// The iterator owns the current batch: it is released on the next call to
// Next and on Close. Callers that hold a batch longer must Retain it.
type BatchIterator struct {
	src       stac.ItemReader
	enc       *encode.Encoder
	chunkSize int
	logger    *zap.Logger

	batch   arrow.Record
	err     error
	done    bool
	batches int
	records int
}

func newIterator(src stac.ItemReader, opts Options) *BatchIterator {
	return &BatchIterator{
		src:       src,
		enc:       encode.NewEncoder(opts.Schema),
		chunkSize: opts.ChunkSize,
		logger:    opts.logger(),
	}
}

// Schema returns the uniform schema shared by every batch.
func (it *BatchIterator) Schema() *arrow.Schema {
	return it.enc.Schema()
}

// Next advances to the next batch. It returns false once the input is
// exhausted or an error occurred; check Err after the loop.
func (it *BatchIterator) Next() bool {
	if it.err != nil || (it.done && it.batch != nil) {
		it.releaseBatch()
		return false
	}
	it.releaseBatch()
	if it.done {
		return false
	}

	chunk := make([]stac.Flattened, 0, it.chunkSize)
	defer func() {
		for _, flat := range chunk {
			flat.Release()
		}
	}()

	for len(chunk) < it.chunkSize {
		item, err := it.src.Read()
		if err == io.EOF {
			it.done = true
			break
		}
		if err != nil {
			it.err = err
			return false
		}
		flat, err := stac.Normalize(item)
		if err != nil {
			it.err = err
			return false
		}
		chunk = append(chunk, flat)
	}

	if len(chunk) == 0 {
		return false
	}

	batch, err := it.enc.Encode(chunk)
	if err != nil {
		it.err = err
		return false
	}
	it.batch = batch
	it.batches++
	it.records += len(chunk)
	it.logger.Debug("encoded batch",
		zap.Int("batch", it.batches),
		zap.Int("rows", len(chunk)))
	return true
}

// Batch returns the current batch. Only valid after Next returned true.
func (it *BatchIterator) Batch() arrow.Record {
	return it.batch
}

// Err returns the terminal error, if any. Conversion errors are terminal:
// the sequence stops producing batches and no partial batch is emitted.
func (it *BatchIterator) Err() error {
	return it.err
}

// Close releases the current batch and the underlying source.
func (it *BatchIterator) Close() error {
	it.releaseBatch()
	it.done = true
	return it.src.Close()
}

func (it *BatchIterator) releaseBatch() {
	if it.batch != nil {
		it.batch.Release()
		it.batch = nil
	}
}
