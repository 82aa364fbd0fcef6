package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hamtree/internal/bitmap"
)

func TestLeafRoundTrip(t *testing.T) {
	key, err := NewKeyField(1234)
	require.NoError(t, err)

	r := Leaf(key, 42)
	assert.True(t, r.IsLeaf())
	assert.Equal(t, key, r.Key())
	assert.Equal(t, uint32(42), r.Value())

	b := r.AppendBinary(nil)
	assert.Equal(t, []byte{0x80, 0, 0x04, 0xd2, 0, 0, 0, 42}, b)

	got, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestNodeRoundTrip(t *testing.T) {
	m := bitmap.FromKey(0).Include(31)
	r := Node(17, m)
	assert.False(t, r.IsLeaf())
	assert.Equal(t, Index(17), r.Start())
	assert.Equal(t, m, r.Map())

	got, err := Parse(r.AppendBinary(nil))
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestNewKeyField_RejectsTagBit(t *testing.T) {
	_, err := NewKeyField(TagBit)
	assert.ErrorIs(t, err, ErrTagCollision)

	_, err = NewKeyField(0xffffffff)
	assert.ErrorIs(t, err, ErrTagCollision)

	k, err := NewKeyField(TagBit - 1)
	require.NoError(t, err)
	assert.Equal(t, KeyField(0x7fffffff), k)
}

func TestEncodeDecode(t *testing.T) {
	records := []Record{{1, 1}, {2, 2}}
	b := Encode(records)
	assert.Equal(t, []byte{0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 2}, b)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	_, err = Decode(b[:5])
	assert.ErrorIs(t, err, ErrShortRecord)
}

func TestParse_Short(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortRecord)
}

func TestIndexOffset(t *testing.T) {
	assert.Equal(t, int64(0), Index(0).Offset())
	assert.Equal(t, int64(80), Index(10).Offset())
	assert.Equal(t, Index(10), IndexFromOffset(80))
	assert.True(t, Empty == Node(0, 0))
}
