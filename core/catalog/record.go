package catalog

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Attribute keys stored as object-store user metadata.
const (
	KeySize  = "size"
	KeyMTime = "mtime"
	KeyMD5   = "md5"
)

// Attributes is the metadata schema shared by all tiers. Empty means absent.
type Attributes struct {
	Size  string `json:"size,omitempty"`
	MTime string `json:"mtime,omitempty"`
	MD5   string `json:"md5,omitempty"`
}

// FromMetadata reads attributes from user metadata. Keys match case-insensitively
// and may carry the X-Amz-Meta- prefix, since S3 servers return them canonicalized.
func FromMetadata(meta map[string]string) Attributes {
	var a Attributes
	for k, v := range meta {
		k = strings.ToLower(k)
		k = strings.TrimPrefix(k, "x-amz-meta-")
		switch k {
		case KeySize:
			a.Size = v
		case KeyMTime:
			a.MTime = v
		case KeyMD5:
			a.MD5 = v
		}
	}
	return a
}

// Metadata returns the attributes as user metadata, omitting absent ones.
func (a Attributes) Metadata() map[string]string {
	m := make(map[string]string, 3)
	if a.Size != "" {
		m[KeySize] = a.Size
	}
	if a.MTime != "" {
		m[KeyMTime] = a.MTime
	}
	if a.MD5 != "" {
		m[KeyMD5] = a.MD5
	}
	return m
}

// Get returns the attribute named key.
func (a Attributes) Get(key string) string {
	switch key {
	case KeySize:
		return a.Size
	case KeyMTime:
		return a.MTime
	case KeyMD5:
		return a.MD5
	}
	return ""
}

// SizeValue parses the size attribute. ok is false when absent or malformed.
func (a Attributes) SizeValue() (int64, bool) {
	if a.Size == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(a.Size, 10, 64)
	return n, err == nil
}

// InventoryRecord is one object known to a tier.
type InventoryRecord struct {
	Name string `json:"name"`
	// Path is the local file of a local record.
	Path string `json:"path,omitempty"`
	// Size is the payload length in the tier that produced the record.
	Size       int64      `json:"size"`
	ModTime    time.Time  `json:"mod_time,omitzero"`
	Attributes Attributes `json:"attributes"`
}

// State is the lifecycle state of an object, derived from where and how it is stored.
type State int

const (
	Local State = iota
	Staged
	Transited
)

func (s State) String() string {
	switch s {
	case Local:
		return "local"
	case Staged:
		return "staged"
	case Transited:
		return "transited"
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ObjectState derives the state of an object-store record from its payload
// length: a payload means it still awaits relay, an empty payload means it was
// relayed and only the attributes remain.
func ObjectState(rec InventoryRecord) State {
	if rec.Size > 0 {
		return Staged
	}
	return Transited
}

// Index keys records by name. Later duplicates win.
func Index(records []InventoryRecord) map[string]InventoryRecord {
	idx := make(map[string]InventoryRecord, len(records))
	for _, r := range records {
		idx[r.Name] = r
	}
	return idx
}

// Names returns the sorted record names.
func Names(records []InventoryRecord) []string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Name
	}
	sort.Strings(names)
	return names
}

// TotalSize sums the payload sizes.
func TotalSize(records []InventoryRecord) int64 {
	var n int64
	for _, r := range records {
		n += r.Size
	}
	return n
}

// FormatMTime renders t as decimal Unix seconds.
func FormatMTime(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', -1, 64)
}
