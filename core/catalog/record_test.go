package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromMetadata(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]string
		want Attributes
	}{
		{"Lower", map[string]string{"size": "10", "md5": "abc"}, Attributes{Size: "10", MD5: "abc"}},
		{"Canonical", map[string]string{"Size": "10", "Mtime": "1.5", "Md5": "abc"}, Attributes{Size: "10", MTime: "1.5", MD5: "abc"}},
		{"AmzPrefix", map[string]string{"X-Amz-Meta-Size": "7"}, Attributes{Size: "7"}},
		{"IgnoresOthers", map[string]string{"Content-Type": "x", "owner": "cta"}, Attributes{}},
		{"Nil", nil, Attributes{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromMetadata(tt.meta))
		})
	}
}

func TestAttributes_Metadata(t *testing.T) {
	assert.Equal(t, map[string]string{"size": "0", "md5": "d41d8cd98f00b204e9800998ecf8427e"},
		Attributes{Size: "0", MD5: "d41d8cd98f00b204e9800998ecf8427e"}.Metadata())
	assert.Empty(t, Attributes{}.Metadata())

	a := Attributes{Size: "1", MTime: "2", MD5: "3"}
	assert.Equal(t, a, FromMetadata(a.Metadata()))
	assert.Equal(t, "2", a.Get(KeyMTime))
	assert.Equal(t, "", a.Get("owner"))
}

func TestAttributes_SizeValue(t *testing.T) {
	n, ok := Attributes{Size: "42"}.SizeValue()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = Attributes{}.SizeValue()
	assert.False(t, ok)
	_, ok = Attributes{Size: "4x"}.SizeValue()
	assert.False(t, ok)
}

func TestObjectState(t *testing.T) {
	assert.Equal(t, Staged, ObjectState(InventoryRecord{Name: "a", Size: 10}))
	assert.Equal(t, Transited, ObjectState(InventoryRecord{Name: "a", Size: 0, Attributes: Attributes{Size: "10"}}))
	assert.Equal(t, "transited", Transited.String())
	assert.Equal(t, "local", Local.String())
}

func TestIndexNamesTotal(t *testing.T) {
	recs := []InventoryRecord{{Name: "b", Size: 2}, {Name: "a", Size: 3}}
	idx := Index(recs)
	assert.Len(t, idx, 2)
	assert.Equal(t, int64(3), idx["a"].Size)
	assert.Equal(t, []string{"a", "b"}, Names(recs))
	assert.Equal(t, int64(5), TotalSize(recs))
}

func TestFormatMTime(t *testing.T) {
	assert.Equal(t, "1700000000.5", FormatMTime(time.Unix(1700000000, 500_000_000)))
	assert.Equal(t, "1700000000", FormatMTime(time.Unix(1700000000, 0)))
}
