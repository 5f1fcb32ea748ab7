package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoplex/stacarrow/pkg/errors"
	"github.com/geoplex/stacarrow/pkg/reader"
)

func writeNDJSON(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

// cells renders every value of every batch as (column, row, text) triples so
// batch sequences with different chunk boundaries can be compared.
func cells(t *testing.T, it *BatchIterator) ([]string, int) {
	t.Helper()
	colCells := make(map[string][]string)
	rows := 0
	for it.Next() {
		batch := it.Batch()
		require.True(t, batch.Schema().Equal(it.Schema()),
			"every batch must share the iterator schema")
		for c := 0; c < int(batch.NumCols()); c++ {
			name := batch.Schema().Field(c).Name
			col := batch.Column(c)
			for r := 0; r < col.Len(); r++ {
				if col.IsNull(r) {
					colCells[name] = append(colCells[name], "<null>")
				} else {
					colCells[name] = append(colCells[name], col.ValueStr(r))
				}
			}
		}
		rows += int(batch.NumRows())
	}
	require.NoError(t, it.Err())

	names := make([]string, 0, len(colCells))
	for name := range colCells {
		names = append(names, name)
	}
	sort.Strings(names)
	flat := make([]string, 0)
	for _, name := range names {
		flat = append(flat, name)
		flat = append(flat, colCells[name]...)
	}
	return flat, rows
}

func TestFilesTwoPassInfersWidenedSchema(t *testing.T) {
	path := writeNDJSON(t,
		`{"id":"a","type":"Feature","properties":{"x":1}}`,
		`{"id":"b","type":"Feature","properties":{"x":2.5}}`,
	)

	it, err := Files([]string{path}, Options{ChunkSize: 1})
	require.NoError(t, err)
	defer it.Close()

	x, ok := it.Schema().FieldsByName("x")
	require.True(t, ok)
	assert.Equal(t, arrow.PrimitiveTypes.Float64, x[0].Type)

	batches := 0
	rows := int64(0)
	for it.Next() {
		batches++
		rows += it.Batch().NumRows()
		assert.True(t, it.Batch().Schema().Equal(it.Schema()))
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 2, batches)
	assert.EqualValues(t, 2, rows, "no record may be dropped")
}

func TestTwoPassMatchesOnePassWithInferredSchema(t *testing.T) {
	path := writeNDJSON(t,
		`{"id":"a","type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"x":1,"name":"alpha"}}`,
		`{"id":"b","type":"Feature","properties":{"x":2.5}}`,
		`{"id":"c","type":"Feature","properties":{"name":"gamma","extra":true}}`,
	)

	twoPass, err := Files([]string{path}, Options{ChunkSize: 2})
	require.NoError(t, err)
	defer twoPass.Close()
	inferred := twoPass.Schema()

	onePass, err := Files([]string{path}, Options{ChunkSize: 2, Schema: inferred})
	require.NoError(t, err)
	defer onePass.Close()

	wantCells, wantRows := cells(t, twoPass)
	gotCells, gotRows := cells(t, onePass)
	assert.Equal(t, wantRows, gotRows)
	assert.Equal(t, wantCells, gotCells, "one-pass with the inferred schema must reproduce two-pass output")
}

func TestChunkingInvariance(t *testing.T) {
	lines := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		lines = append(lines, fmt.Sprintf(`{"id":"item-%02d","type":"Feature","properties":{"x":%d}}`, i, i))
	}
	path := writeNDJSON(t, lines...)

	small, err := Files([]string{path}, Options{ChunkSize: 1})
	require.NoError(t, err)
	defer small.Close()
	sch := small.Schema()

	big, err := Files([]string{path}, Options{ChunkSize: 8192, Schema: sch})
	require.NoError(t, err)
	defer big.Close()

	smallRerun, err := Files([]string{path}, Options{ChunkSize: 1, Schema: sch})
	require.NoError(t, err)
	defer smallRerun.Close()

	wantCells, wantRows := cells(t, smallRerun)
	gotCells, gotRows := cells(t, big)
	assert.Equal(t, 20, wantRows)
	assert.Equal(t, wantRows, gotRows)
	assert.Equal(t, wantCells, gotCells, "chunk size must not change the converted values")
}

func TestItemsWithoutSchemaProducesSingleBatch(t *testing.T) {
	items := []map[string]interface{}{
		{"id": "a", "type": "Feature", "properties": map[string]interface{}{"x": 1.0}},
		{"id": "b", "type": "Feature", "properties": map[string]interface{}{"x": 2.0}},
		{"id": "c", "type": "Feature", "properties": map[string]interface{}{"y": "late"}},
	}

	// chunk size 1 is ignored without a schema: the collection must come
	// back as one contiguous batch.
	it, err := Items(items, Options{ChunkSize: 1})
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Next())
	assert.EqualValues(t, 3, it.Batch().NumRows())
	assert.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestItemsWithSchemaIsChunked(t *testing.T) {
	items := []map[string]interface{}{
		{"id": "a", "type": "Feature"},
		{"id": "b", "type": "Feature"},
		{"id": "c", "type": "Feature"},
	}

	inferOnly, err := Items(items, Options{})
	require.NoError(t, err)
	sch := inferOnly.Schema()
	require.NoError(t, inferOnly.Close())

	it, err := Items(items, Options{ChunkSize: 2, Schema: sch})
	require.NoError(t, err)
	defer it.Close()

	batches := []int64{}
	for it.Next() {
		batches = append(batches, it.Batch().NumRows())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []int64{2, 1}, batches)
}

func TestStreamWithoutSchemaFailsFast(t *testing.T) {
	src := reader.FromStream(strings.NewReader(`{"id":"a","type":"Feature"}`))
	defer src.Close()

	_, err := Stream(src, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNonReplayableSource))

	// Fail-fast means the stream was not consumed.
	item, err := src.Read()
	require.NoError(t, err)
	assert.Equal(t, "a", item["id"])
}

func TestStreamWithSuppliedSchemaIsOnePass(t *testing.T) {
	sch := arrow.NewSchema([]arrow.Field{
		{Name: "type", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "id", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	src := reader.FromStream(strings.NewReader(
		`{"id":"a","type":"Feature"}` + "\n" + `{"id":"b","type":"Feature"}`))
	it, err := Stream(src, Options{Schema: sch, ChunkSize: 10})
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Next())
	assert.EqualValues(t, 2, it.Batch().NumRows())
	assert.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestMissingGeometryEncodesNullColumns(t *testing.T) {
	path := writeNDJSON(t,
		`{"id":"a","type":"Feature","geometry":{"type":"Point","coordinates":[1,2]}}`,
		`{"id":"b","type":"Feature"}`,
	)

	it, err := Files([]string{path}, Options{})
	require.NoError(t, err)
	defer it.Close()

	geomIdx := it.Schema().FieldIndices("geometry")
	bboxIdx := it.Schema().FieldIndices("bbox")
	require.Len(t, geomIdx, 1)
	require.Len(t, bboxIdx, 1)

	require.True(t, it.Next())
	batch := it.Batch()
	require.EqualValues(t, 2, batch.NumRows())
	assert.False(t, batch.Column(geomIdx[0]).IsNull(0))
	assert.False(t, batch.Column(bboxIdx[0]).IsNull(0), "bbox is derived from geometry")
	assert.True(t, batch.Column(geomIdx[0]).IsNull(1))
	assert.True(t, batch.Column(bboxIdx[0]).IsNull(1))
}

func TestMalformedRecordAbortsIteration(t *testing.T) {
	path := writeNDJSON(t,
		`{"id":"a","type":"Feature"}`,
		`{"type":"Feature"}`,
	)

	sch := arrow.NewSchema([]arrow.Field{
		{Name: "type", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "id", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	it, err := Files([]string{path}, Options{Schema: sch, ChunkSize: 1})
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Next())
	assert.False(t, it.Next())
	require.Error(t, it.Err())
	assert.True(t, errors.IsType(it.Err(), errors.ErrorTypeMalformedRecord))
	assert.False(t, it.Next(), "a failed iterator stays failed")
}

func TestInferenceErrorSurfacesBeforeBatches(t *testing.T) {
	path := writeNDJSON(t, `{"type":"Feature"}`)

	_, err := Files([]string{path}, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedRecord))
}

func TestEmptyInputWithoutSchemaFails(t *testing.T) {
	_, err := Items(nil, Options{})
	require.Error(t, err)
}

func TestItemsEncodesNativeIntegerTypes(t *testing.T) {
	// Inference and encoding must agree on Go-native numeric widths: a
	// collection the model inferred from has to encode against the
	// schema it produced.
	items := []map[string]interface{}{
		{"id": "a", "type": "Feature", "properties": map[string]interface{}{"x": uint(1)}},
		{"id": "b", "type": "Feature", "properties": map[string]interface{}{"x": int8(2)}},
		{"id": "c", "type": "Feature", "properties": map[string]interface{}{"x": uint64(3)}},
	}

	it, err := Items(items, Options{})
	require.NoError(t, err)
	defer it.Close()

	x, ok := it.Schema().FieldsByName("x")
	require.True(t, ok)
	assert.Equal(t, arrow.PrimitiveTypes.Int64, x[0].Type)

	require.True(t, it.Next())
	batch := it.Batch()
	require.EqualValues(t, 3, batch.NumRows())

	idx := it.Schema().FieldIndices("x")
	require.Len(t, idx, 1)
	col := batch.Column(idx[0]).(*array.Int64)
	assert.EqualValues(t, 1, col.Value(0))
	assert.EqualValues(t, 2, col.Value(1))
	assert.EqualValues(t, 3, col.Value(2))
	require.NoError(t, it.Err())
}
