// Package schema infers a single Arrow schema that is a correct superset of
// the shapes observed across an arbitrarily large, heterogeneous stream of
// normalized STAC records.
//
// Inference is built on an explicit type lattice: every JSON leaf maps to a
// tagged DataType descriptor, and conflicting observations of one field are
// reconciled through LeastUpperBound under a total, deterministic widening
// order (bool < int64 < float64 < string, string as the fallback for
// irreconcilable scalars). LeastUpperBound is commutative and associative,
// so chunk-local models can be merged in any order without changing the
// finalized schema.
package schema

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/geoplex/stacarrow/pkg/errors"
)

// Kind tags a DataType descriptor with its JSON-derived category.
type Kind uint8

const (
	// KindNull marks a field for which only null has been observed.
	KindNull Kind = iota
	// KindBool is a boolean column.
	KindBool
	// KindInt64 is an integer column.
	KindInt64
	// KindFloat64 is a floating-point column.
	KindFloat64
	// KindTimestamp is a UTC microsecond timestamp column, used for the
	// well-known STAC temporal fields when every observed value parses as
	// RFC 3339.
	KindTimestamp
	// KindString is a UTF-8 column; also the fallback for irreconcilable
	// scalar conflicts.
	KindString
	// KindBinary is an opaque byte column (WKB geometry).
	KindBinary
	// KindBBox is a fixed-size list of float64 bounds (4 for 2D, 6 for 3D).
	KindBBox
	// KindList is a variable-length list with a single element type.
	KindList
	// KindStruct is a nested object with per-field types (assets, links).
	KindStruct
)

var kindNames = map[Kind]string{
	KindNull:      "null",
	KindBool:      "bool",
	KindInt64:     "int64",
	KindFloat64:   "float64",
	KindTimestamp: "timestamp",
	KindString:    "string",
	KindBinary:    "binary",
	KindBBox:      "bbox",
	KindList:      "list",
	KindStruct:    "struct",
}

// DataType is a type descriptor in the widening lattice.
type DataType struct {
	Kind Kind
	// Elem is the list element type; nil while only empty lists have been
	// observed.
	Elem *DataType
	// Size is the bbox arity, 4 or 6.
	Size int
	// Fields holds struct field types.
	Fields map[string]*DataType
}

func (t *DataType) String() string {
	if t == nil {
		return "null"
	}
	switch t.Kind {
	case KindList:
		return fmt.Sprintf("list<%s>", t.Elem.String())
	case KindBBox:
		return fmt.Sprintf("bbox[%d]", t.Size)
	case KindStruct:
		return fmt.Sprintf("struct{%d fields}", len(t.Fields))
	default:
		return kindNames[t.Kind]
	}
}

// scalarRank orders the widenable scalar kinds. Timestamp is handled
// separately: it only joins with itself, and falls back to string against
// any other scalar.
var scalarRank = map[Kind]int{
	KindBool:    1,
	KindInt64:   2,
	KindFloat64: 3,
	KindString:  4,
}

func isScalar(k Kind) bool {
	_, ok := scalarRank[k]
	return ok || k == KindTimestamp
}

// LeastUpperBound returns the least upper bound of two descriptors under
// the widening order. Null observations are absorbed without effect. The
// operation is commutative and associative; it fails with an
// unsupported_type error for shapes that cannot be reconciled, such as a
// field that is sometimes a scalar and sometimes a list.
func LeastUpperBound(a, b *DataType) (*DataType, error) {
	if a == nil || a.Kind == KindNull {
		return b, nil
	}
	if b == nil || b.Kind == KindNull {
		return a, nil
	}

	if isScalar(a.Kind) && isScalar(b.Kind) {
		return scalarLUB(a, b), nil
	}

	if a.Kind != b.Kind {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedType,
			"cannot widen %s with %s", a, b)
	}

	switch a.Kind {
	case KindBinary:
		return a, nil
	case KindBBox:
		if a.Size >= b.Size {
			return a, nil
		}
		return b, nil
	case KindList:
		elem, err := LeastUpperBound(a.Elem, b.Elem)
		if err != nil {
			return nil, err
		}
		return &DataType{Kind: KindList, Elem: elem}, nil
	case KindStruct:
		fields := make(map[string]*DataType, len(a.Fields)+len(b.Fields))
		for name, t := range a.Fields {
			fields[name] = t
		}
		for name, t := range b.Fields {
			merged, err := LeastUpperBound(fields[name], t)
			if err != nil {
				return nil, err
			}
			fields[name] = merged
		}
		return &DataType{Kind: KindStruct, Fields: fields}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeUnsupportedType,
			"cannot widen %s with %s", a, b)
	}
}

func scalarLUB(a, b *DataType) *DataType {
	if a.Kind == b.Kind {
		return a
	}
	if a.Kind == KindTimestamp || b.Kind == KindTimestamp {
		// A timestamp column reconciles with any other scalar only as a
		// plain string.
		return &DataType{Kind: KindString}
	}
	if scalarRank[a.Kind] >= scalarRank[b.Kind] {
		return a
	}
	return b
}

// arrowType maps a finalized descriptor to its Arrow column type. A field
// observed only as null falls back to a string column so the batch layout
// stays writable.
func (t *DataType) arrowType() arrow.DataType {
	if t == nil {
		return arrow.BinaryTypes.String
	}
	switch t.Kind {
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	case KindInt64:
		return arrow.PrimitiveTypes.Int64
	case KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case KindTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	case KindBinary:
		return arrow.BinaryTypes.Binary
	case KindBBox:
		return arrow.FixedSizeListOf(int32(t.Size), arrow.PrimitiveTypes.Float64)
	case KindList:
		return arrow.ListOf(t.Elem.arrowType())
	case KindStruct:
		names := make([]string, 0, len(t.Fields))
		for name := range t.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := make([]arrow.Field, len(names))
		for i, name := range names {
			fields[i] = arrow.Field{
				Name:     name,
				Type:     t.Fields[name].arrowType(),
				Nullable: true,
			}
		}
		return arrow.StructOf(fields...)
	default:
		return arrow.BinaryTypes.String
	}
}
