package catalog

import (
	"errors"
	"strconv"
	"strings"

	xerrors "github.com/davidvella/catidx/internal/errors"
	jsoniter "github.com/json-iterator/go"
)

// ErrInvalidColumn is returned for a key column of zero.
var ErrInvalidColumn = errors.New("catalog: key column must be non-zero")

// vcfMissing is the missing-value marker used by VCF-style catalogs.
const vcfMissing = "."

// Extractor pulls the key out of a record.
//
// Column is 1-based; negative values count from the end, -1 being the last
// column. When Path is set the column holds a JSON document and the key is the
// scalar at the dotted Path, where numeric segments index arrays.
type Extractor struct {
	Column int
	Path   string

	segments []string
}

func NewExtractor(column int, path string) (*Extractor, error) {
	if column == 0 {
		return nil, ErrInvalidColumn
	}
	x := &Extractor{Column: column, Path: path}
	if path != "" {
		x.segments = strings.Split(path, ".")
	}
	return x, nil
}

// Extract returns the raw key of the record. ok is false when the record has
// no key: the column is absent, empty or ".", or the path does not resolve to
// a non-null value. A payload that is not a JSON object or array, or a path
// that resolves to an object or array, is a *KeyExtractionError.
func (x *Extractor) Extract(columns []string, offset uint64) (key string, ok bool, err error) {
	idx := x.Column - 1
	if x.Column < 0 {
		idx = len(columns) + x.Column
	}
	if idx < 0 || idx >= len(columns) {
		return "", false, nil
	}

	raw := columns[idx]
	if raw == "" || raw == vcfMissing {
		return "", false, nil
	}
	if len(x.segments) == 0 {
		return raw, true, nil
	}

	doc := []byte(raw)
	if c := firstNonSpace(raw); (c != '{' && c != '[') || !jsoniter.Valid(doc) {
		return "", false, x.fail(offset, "payload is not a JSON object or array")
	}

	value := jsoniter.Get(doc)
	for _, seg := range x.segments {
		switch value.ValueType() {
		case jsoniter.ObjectValue:
			value = value.Get(seg)
		case jsoniter.ArrayValue:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 {
				return "", false, nil
			}
			value = value.Get(i)
		default:
			return "", false, nil
		}
	}

	switch value.ValueType() {
	case jsoniter.StringValue, jsoniter.NumberValue, jsoniter.BoolValue:
		key = value.ToString()
	case jsoniter.ObjectValue, jsoniter.ArrayValue:
		return "", false, x.fail(offset, "value at path is not a scalar")
	default:
		return "", false, nil
	}
	if key == "" || key == vcfMissing {
		return "", false, nil
	}
	return key, true, nil
}

func (x *Extractor) fail(offset uint64, reason string) error {
	return &xerrors.KeyExtractionError{
		Offset: offset,
		Column: x.Column,
		Path:   x.Path,
		Reason: reason,
	}
}

func firstNonSpace(s string) byte {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return s[i]
		}
	}
	return 0
}
