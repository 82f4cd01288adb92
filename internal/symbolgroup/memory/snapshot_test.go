package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	s, err := Load("testdata/frame.yaml")
	require.NoError(t, err)

	require.Len(t, s.Locals, 4)
	assert.Equal(t, Address(0x1000), s.Locals[0].Address)
	assert.Equal(t, uint64(8), s.Locals[0].Size)
	assert.True(t, s.Locals[3].Inaccessible)
	assert.Equal(t, []string{"local.stale"}, s.Uninitialized)
	require.Len(t, s.Memory, 2)
	assert.Equal(t, Address(0x4000), s.Memory[1].Address)
	data, err := s.Memory[1].Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, data)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"unnamed", "locals:\n  - type: int\n", ErrUnnamedVariable},
		{"unnamed child", "locals:\n  - name: a\n    children:\n      - value: x\n", ErrUnnamedVariable},
		{"bad address", "locals:\n  - name: a\n    address: nowhere\n", nil},
		{"bad hex", "memory:\n  - address: 1\n    hex: zz\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	assert.Error(t, err)
}
