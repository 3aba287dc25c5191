package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedContainsDefaultPersona(t *testing.T) {
	items, err := Seed()
	require.NoError(t, err)

	store := NewMemoryStore(items)
	tyler, ok := store.FindByID(DefaultID)
	require.True(t, ok)
	assert.Equal(t, "Tyler", tyler.Name)
	assert.True(t, strings.HasPrefix(tyler.Prompt, "You are 'Tyler'"))
	assert.Contains(t, tyler.Prompt, "After 6–8 messages, wrap up")
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	_, err := Parse([]byte("- id: a\n  prompt: x\n- id: a\n  prompt: y\n"))
	require.Error(t, err)
}

func TestParseRejectsMissingID(t *testing.T) {
	_, err := Parse([]byte("- name: nobody\n"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- id: closer\n  name: Closer\n  prompt: be tough\n"), 0o644))

	items, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "be tough", items[0].Prompt)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestMemoryStoreListIsCopy(t *testing.T) {
	store := NewMemoryStore([]Persona{{ID: "a"}, {ID: "b"}})
	list := store.List()
	list[0].ID = "changed"

	_, ok := store.FindByID("a")
	assert.True(t, ok)
	_, ok = store.FindByID("missing")
	assert.False(t, ok)
}
