package binary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup3KnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  uint32
	}{
		{"empty", "", 0xdeadbeef},
		{"four score", "Four score and seven years ago", 0x17770551},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Lookup3([]byte(tt.input)))
		})
	}
}

func TestLookup3DistinctLengths(t *testing.T) {
	seen := make(map[uint32]int)
	for n := 0; n <= 24; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}
		seen[Lookup3(data)] = n
	}
	assert.Len(t, seen, 25)
}

func TestFletcher32(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  uint32
	}{
		{"empty", nil, 0xffffffff},
		{"one word", []byte{0x01, 0x02}, 0x01020102},
		{"odd tail", []byte{0x01}, 0x01000100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fletcher32(tt.input))
		})
	}
}

func TestFletcher32LongInput(t *testing.T) {
	// Crosses the 360-word reduction boundary.
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i * 7)
	}
	a := Fletcher32(data)
	data[100] ^= 0xff
	assert.NotEqual(t, a, Fletcher32(data))
}
