package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("msgpack")
	assert.False(t, ok)

	_, err := Lookup("msgpack")
	assert.ErrorContains(t, err, "msgpack")
}

func TestCodecs_Interchangeable(t *testing.T) {
	in := map[string]uint32{"lot": 0, "size": 1, "größe": 2}

	for _, w := range []Codec{JSON{}, GoJSON{}} {
		for _, r := range []Codec{JSON{}, GoJSON{}} {
			data, err := w.Marshal(in)
			require.NoError(t, err)

			var out map[string]uint32
			require.NoError(t, r.Unmarshal(data, &out))
			assert.Equal(t, in, out, "%s -> %s", w.Name(), r.Name())
		}
	}
}
