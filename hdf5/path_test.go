package hdf5

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"/", []string{}},
		{"//", []string{}},
		{"/foo", []string{"foo"}},
		{"foo/bar/", []string{"foo", "bar"}},
		{"/a//b", []string{"a", "b"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitPath(tt.in), tt.in)
	}
}

func TestCleanAndJoinPath(t *testing.T) {
	assert.Equal(t, "/", CleanPath(""))
	assert.Equal(t, "/a/b", CleanPath("a//b/"))
	assert.Equal(t, "/x", JoinPath("/", "x"))
	assert.Equal(t, "/a/x", JoinPath("/a", "x"))
}

func TestCheckName(t *testing.T) {
	assert.NoError(t, checkName("ok"))
	for _, bad := range []string{"", ".", "..", "a/b"} {
		assert.ErrorIs(t, checkName(bad), ErrInvalidPath, bad)
	}
}
