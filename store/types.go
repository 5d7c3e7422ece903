package store

import (
	"time"

	"github.com/davidvella/catidx/entry"
)

// FormatVersion is bumped whenever the key layout changes.
const FormatVersion = 1

// Namespace prefixes the keys of each kind of state
type Namespace string

const (
	MetadataNamespace Namespace = "m/"
	RowNamespace      Namespace = "r/"
	KeyNamespace      Namespace = "k/"
)

// Metadata describes an index and how it was built
type Metadata struct {
	FormatVersion int           `json:"format_version"`
	KeyType       entry.KeyType `json:"key_type"`
	MaxKeyWidth   int           `json:"max_key_width"`
	Count         int64         `json:"count"`
	Catalog       string        `json:"catalog"`
	Column        int           `json:"column"`
	Path          string        `json:"path,omitempty"`
	Created       time.Time     `json:"created"`
	Complete      bool          `json:"complete"`
}

// Row is one loaded (key, offset) pair. Rows get consecutive ids in append order.
type Row struct {
	Key    entry.Key
	Offset uint64
}

// Entry is one element of the key index.
type Entry struct {
	Key    entry.Key
	Row    uint64
	Offset uint64
}
