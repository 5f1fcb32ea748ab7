package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoplex/stacarrow/pkg/errors"
)

func scalar(k Kind) *DataType { return &DataType{Kind: k} }

func TestLeastUpperBoundWideningChain(t *testing.T) {
	tests := []struct {
		name string
		a, b *DataType
		want Kind
	}{
		{"bool+bool", scalar(KindBool), scalar(KindBool), KindBool},
		{"bool+int", scalar(KindBool), scalar(KindInt64), KindInt64},
		{"int+float", scalar(KindInt64), scalar(KindFloat64), KindFloat64},
		{"float+string", scalar(KindFloat64), scalar(KindString), KindString},
		{"bool+string", scalar(KindBool), scalar(KindString), KindString},
		{"timestamp+timestamp", scalar(KindTimestamp), scalar(KindTimestamp), KindTimestamp},
		{"timestamp+string", scalar(KindTimestamp), scalar(KindString), KindString},
		{"timestamp+int", scalar(KindTimestamp), scalar(KindInt64), KindString},
		{"null+float", scalar(KindNull), scalar(KindFloat64), KindFloat64},
		{"binary+binary", scalar(KindBinary), scalar(KindBinary), KindBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LeastUpperBound(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Kind)

			// Widening must be commutative.
			flipped, err := LeastUpperBound(tt.b, tt.a)
			require.NoError(t, err)
			assert.Equal(t, tt.want, flipped.Kind)
		})
	}
}

func TestLeastUpperBoundAssociative(t *testing.T) {
	descriptors := []*DataType{
		scalar(KindBool),
		scalar(KindInt64),
		scalar(KindFloat64),
		scalar(KindString),
		scalar(KindNull),
	}

	for _, a := range descriptors {
		for _, b := range descriptors {
			for _, c := range descriptors {
				left, err := LeastUpperBound(a, b)
				require.NoError(t, err)
				left, err = LeastUpperBound(left, c)
				require.NoError(t, err)

				right, err := LeastUpperBound(b, c)
				require.NoError(t, err)
				right, err = LeastUpperBound(a, right)
				require.NoError(t, err)

				assert.Equal(t, left.Kind, right.Kind,
					"lub(lub(%s,%s),%s) != lub(%s,lub(%s,%s))", a, b, c, a, b, c)
			}
		}
	}
}

func TestLeastUpperBoundNullAbsorbed(t *testing.T) {
	got, err := LeastUpperBound(nil, scalar(KindInt64))
	require.NoError(t, err)
	assert.Equal(t, KindInt64, got.Kind)

	got, err = LeastUpperBound(scalar(KindInt64), scalar(KindNull))
	require.NoError(t, err)
	assert.Equal(t, KindInt64, got.Kind)
}

func TestLeastUpperBoundLists(t *testing.T) {
	intList := &DataType{Kind: KindList, Elem: scalar(KindInt64)}
	floatList := &DataType{Kind: KindList, Elem: scalar(KindFloat64)}
	emptyList := &DataType{Kind: KindList}

	got, err := LeastUpperBound(intList, floatList)
	require.NoError(t, err)
	assert.Equal(t, KindList, got.Kind)
	assert.Equal(t, KindFloat64, got.Elem.Kind)

	// An empty list does not establish an element type.
	got, err = LeastUpperBound(emptyList, intList)
	require.NoError(t, err)
	assert.Equal(t, KindInt64, got.Elem.Kind)
}

func TestLeastUpperBoundScalarVsListFails(t *testing.T) {
	_, err := LeastUpperBound(scalar(KindInt64), &DataType{Kind: KindList, Elem: scalar(KindInt64)})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedType))
}

func TestLeastUpperBoundBBoxWidensTo3D(t *testing.T) {
	got, err := LeastUpperBound(&DataType{Kind: KindBBox, Size: 4}, &DataType{Kind: KindBBox, Size: 6})
	require.NoError(t, err)
	assert.Equal(t, 6, got.Size)
}

func TestLeastUpperBoundStructUnion(t *testing.T) {
	a := &DataType{Kind: KindStruct, Fields: map[string]*DataType{
		"href": scalar(KindString),
		"size": scalar(KindInt64),
	}}
	b := &DataType{Kind: KindStruct, Fields: map[string]*DataType{
		"size":  scalar(KindFloat64),
		"title": scalar(KindString),
	}}

	got, err := LeastUpperBound(a, b)
	require.NoError(t, err)
	require.Equal(t, KindStruct, got.Kind)
	assert.Len(t, got.Fields, 3)
	assert.Equal(t, KindString, got.Fields["href"].Kind)
	assert.Equal(t, KindFloat64, got.Fields["size"].Kind)
	assert.Equal(t, KindString, got.Fields["title"].Kind)
}

func TestLeastUpperBoundBinaryVsScalarFails(t *testing.T) {
	_, err := LeastUpperBound(scalar(KindBinary), scalar(KindString))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedType))
}
