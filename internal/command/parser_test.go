package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		name  string
		args  map[string]string
	}{
		{"fix", "fix", map[string]string{}},
		{"review file=a.rs mode=deep", "review", map[string]string{"file": "a.rs", "mode": "deep"}},
		{"greet alice bob", "greet", map[string]string{"1": "alice", "2": "bob"}},
		{"mix a k=v b", "mix", map[string]string{"1": "a", "k": "v", "2": "b"}},
		{"eq expr=a=b", "eq", map[string]string{"expr": "a=b"}},
		{"dup k=1 k=2", "dup", map[string]string{"k": "2"}},
		{"  spaced \t out  ", "spaced", map[string]string{"1": "out"}},
		{"empty key=", "empty", map[string]string{"key": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			inv, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.name, inv.Name)
			assert.Equal(t, tt.args, inv.Args)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "\t\n"} {
		_, err := Parse(in)
		assert.True(t, errors.Is(err, ErrEmpty), "input %q", in)
	}
}

func TestParseSlash(t *testing.T) {
	inv, err := ParseSlash("/review file=main.go")
	require.NoError(t, err)
	assert.Equal(t, "review", inv.Name)
	assert.Equal(t, "main.go", inv.Args["file"])

	_, err = ParseSlash("/")
	assert.True(t, errors.Is(err, ErrEmpty))

	assert.True(t, IsSlash("  /help"))
	assert.False(t, IsSlash("hello /there"))
}
