package vocab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const intents = `
# dialogue acts
greeting
Request
request
  inform

confirm
`

func TestRead(t *testing.T) {
	l, err := Read(strings.NewReader(intents))
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting", "Request", "inform", "confirm"}, l.Entries())
	assert.Equal(t, 4, l.Len())
}

func TestSuggest(t *testing.T) {
	l := NewList("greeting", "Request", "reject", "inform")

	tests := []struct {
		prefix string
		want   []string
	}{
		{"re", []string{"Request", "reject"}},
		{"RE", []string{"Request", "reject"}},
		{"requ", []string{"Request"}},
		{"", []string{"greeting", "Request", "reject", "inform"}},
		{"x", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Suggest(tt.prefix))
		})
	}
}

func TestKnown(t *testing.T) {
	l := NewList("greeting")
	assert.True(t, l.Known("Greeting"))
	assert.True(t, l.Known(" greeting "))
	assert.False(t, l.Known("farewell"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	intentsPath := filepath.Join(dir, "intents.txt")
	require.NoError(t, os.WriteFile(intentsPath, []byte(intents), 0o644))

	v, err := Load(intentsPath, "")
	require.NoError(t, err)
	assert.Equal(t, 4, v.Intents.Len())
	assert.Equal(t, 0, v.SlotKeys.Len())

	_, err = Load(filepath.Join(dir, "missing.txt"), "")
	assert.ErrorContains(t, err, "intents")
}
