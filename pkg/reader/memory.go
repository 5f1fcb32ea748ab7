package reader

import (
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/geoplex/stacarrow/pkg/errors"
	jsonpool "github.com/geoplex/stacarrow/pkg/json"
)

// ItemsReader reads from an in-memory, fully materialized collection of
// items. It is replayable.
type ItemsReader struct {
	items []map[string]interface{}
	pos   int
}

// Items creates a reader over a materialized item slice.
func Items(items []map[string]interface{}) *ItemsReader {
	return &ItemsReader{items: items}
}

// Read returns the next item, or io.EOF once the slice is exhausted.
func (r *ItemsReader) Read() (map[string]interface{}, error) {
	if r.pos >= len(r.items) {
		return nil, io.EOF
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}

// Reset rewinds the reader to the first item.
func (r *ItemsReader) Reset() error {
	r.pos = 0
	return nil
}

// Close is a no-op for in-memory readers.
func (r *ItemsReader) Close() error { return nil }

// Len returns the total number of items.
func (r *ItemsReader) Len() int { return len(r.items) }

// StreamReader reads items from a single-consumption byte stream. It
// deliberately does not implement Reset: a plain stream cannot be
// re-enumerated, so two-pass schema inference rejects it up front.
type StreamReader struct {
	dec   *gojson.Decoder
	queue itemQueue
}

// FromStream creates a one-shot reader over r. The stream may contain
// newline-delimited items, a JSON array, or a FeatureCollection.
func FromStream(r io.Reader) *StreamReader {
	return &StreamReader{dec: jsonpool.GetDecoder(r)}
}

// Read returns the next item, or io.EOF once the stream is exhausted.
func (r *StreamReader) Read() (map[string]interface{}, error) {
	for {
		if item, ok := r.queue.pop(); ok {
			return item, nil
		}
		if r.dec == nil {
			return nil, io.EOF
		}

		var value interface{}
		err := r.dec.Decode(&value)
		if err == io.EOF {
			jsonpool.PutDecoder(r.dec)
			r.dec = nil
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeMalformedRecord, "invalid JSON input")
		}
		if err := r.queue.push(value); err != nil {
			return nil, err
		}
	}
}

// Close releases the pooled decoder.
func (r *StreamReader) Close() error {
	if r.dec != nil {
		jsonpool.PutDecoder(r.dec)
		r.dec = nil
	}
	return nil
}
