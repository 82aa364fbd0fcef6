package element

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/hamtree/internal/bitmap"
)

// Size is the encoded size of one record in bytes.
const Size = 8

// TagBit marks the first field of a leaf entry.
const TagBit uint32 = 1 << 31

// MaxIndex is the largest record index a node reference can address.
const MaxIndex = Index(TagBit - 1)

var (
	// ErrTagCollision is returned when a key token needs the tag bit.
	ErrTagCollision = errors.New("element: key token collides with tag bit")
	// ErrShortRecord is returned when fewer than Size bytes are parsed.
	ErrShortRecord = errors.New("element: short record")
)

// Index is a record offset into the element stash.
type Index uint32

// Offset returns the byte position of the record.
func (i Index) Offset() int64 { return int64(i) * Size }

// IndexFromOffset converts a byte position back into a record index.
func IndexFromOffset(off int64) Index { return Index(off / Size) }

// KeyField is a key token as stored inside a leaf entry. The tag bit is
// always clear.
type KeyField uint32

// NewKeyField validates v as a key token.
func NewKeyField(v uint32) (KeyField, error) {
	if v&TagBit != 0 {
		return 0, fmt.Errorf("%w: %#x", ErrTagCollision, v)
	}
	return KeyField(v), nil
}

// Record is one decoded stash slot.
type Record [2]uint32

// Empty is the sentinel record written at index 0 of every stash: a node
// reference with no elements.
var Empty = Record{0, 0}

// Leaf builds a leaf entry.
func Leaf(key KeyField, value uint32) Record {
	return Record{uint32(key) | TagBit, value}
}

// Node builds a reference to a child whose elements start at start.
func Node(start Index, m bitmap.ElementMap) Record {
	return Record{uint32(start) &^ TagBit, uint32(m)}
}

// IsLeaf reports whether r is a leaf entry.
func (r Record) IsLeaf() bool { return r[0]&TagBit != 0 }

// Key returns the key token of a leaf entry with the tag stripped.
func (r Record) Key() KeyField { return KeyField(r[0] &^ TagBit) }

// Value returns the value of a leaf entry.
func (r Record) Value() uint32 { return r[1] }

// Start returns the child start index of a node reference.
func (r Record) Start() Index { return Index(r[0]) }

// Map returns the child element map of a node reference.
func (r Record) Map() bitmap.ElementMap { return bitmap.ElementMap(r[1]) }

// AppendBinary appends the big-endian encoding of r to dst.
func (r Record) AppendBinary(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, r[0])
	return binary.BigEndian.AppendUint32(dst, r[1])
}

func (r Record) String() string {
	if r.IsLeaf() {
		return fmt.Sprintf("leaf(%d=%d)", r.Key(), r.Value())
	}
	return fmt.Sprintf("node(@%d, %s)", r.Start(), r.Map())
}

// Parse decodes the first Size bytes of b.
func Parse(b []byte) (Record, error) {
	if len(b) < Size {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(b))
	}
	return Record{
		binary.BigEndian.Uint32(b[0:4]),
		binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// Encode encodes records back to back.
func Encode(records []Record) []byte {
	buf := make([]byte, 0, len(records)*Size)
	for _, r := range records {
		buf = r.AppendBinary(buf)
	}
	return buf
}

// Decode parses a buffer holding whole records.
func Decode(b []byte) ([]Record, error) {
	if len(b)%Size != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrShortRecord, len(b)%Size)
	}
	out := make([]Record, len(b)/Size)
	for i := range out {
		r, err := Parse(b[i*Size:])
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
