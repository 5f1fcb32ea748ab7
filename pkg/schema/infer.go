package schema

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/geoplex/stacarrow/pkg/errors"
	"github.com/geoplex/stacarrow/pkg/stac"
)

// Infer performs the schema inference pass: a full read of src in chunks of
// at most chunkSize records, normalizing each item and folding its shape
// into a running schema model. Memory stays bounded regardless of total
// input size; each chunk's locally observed model is merged into the global
// model and the normalized records are discarded. Any error aborts the
// whole pass.
func Infer(src stac.ItemReader, chunkSize int, logger *zap.Logger) (*arrow.Schema, error) {
	if chunkSize <= 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "chunk size must be positive, got %d", chunkSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	global := NewBuilder()
	local := NewBuilder()
	records, inChunk, chunks := 0, 0, 0

	for {
		item, err := src.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		flat, err := stac.Normalize(item)
		if err != nil {
			return nil, err
		}
		obsErr := local.Observe(flat)
		flat.Release()
		if obsErr != nil {
			return nil, obsErr
		}

		records++
		inChunk++
		if inChunk == chunkSize {
			if err := global.Merge(local); err != nil {
				return nil, err
			}
			local = NewBuilder()
			inChunk = 0
			chunks++
		}
	}

	if inChunk > 0 {
		if err := global.Merge(local); err != nil {
			return nil, err
		}
		chunks++
	}

	logger.Debug("schema inference pass complete",
		zap.Int("records", records),
		zap.Int("chunks", chunks),
		zap.Int("fields", global.NumFields()))

	return global.Finalize()
}
