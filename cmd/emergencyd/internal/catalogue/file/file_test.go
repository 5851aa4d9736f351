package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`services:
  - name: Fire
    response: "Fire: 101"
`), 0o644))

	entries, err := NewSource(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Fire", entries[0].Name)
	assert.Equal(t, "Fire: 101", entries[0].Response)
}

func TestSource_LoadMissingFile(t *testing.T) {
	_, err := NewSource(filepath.Join(t.TempDir(), "nope.yaml")).Load(context.Background())
	assert.ErrorContains(t, err, "failed to read catalogue file")
}
