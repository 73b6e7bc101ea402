package collections

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Collections)
}

func TestLoad_ParsesFileAndDefaultsPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.yaml")
	content := `collections:
  - name: notes
    path: /home/me/notes
  - name: work
    path: /home/me/work
    pattern: "docs/**/*.md"
    update: git pull --ff-only
contexts:
  - collection: notes
    path: infra
    context: infrastructure runbooks
global_context: personal kb
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Collections, 2)
	assert.Equal(t, DefaultPattern, cfg.Collections[0].Pattern)
	assert.Equal(t, "docs/**/*.md", cfg.Collections[1].Pattern)
	assert.Equal(t, "git pull --ff-only", cfg.Collections[1].Update)

	require.Len(t, cfg.Contexts, 1)
	assert.Equal(t, "infra", cfg.Contexts[0].Path)
	assert.Equal(t, "personal kb", cfg.GlobalContext)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collections: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.yaml")

	cfg := &Config{}
	require.NoError(t, cfg.Add(Collection{Name: "notes", Path: t.TempDir()}))
	cfg.SetContext("notes", "", "all my notes")
	cfg.GlobalContext = "kb"

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Collections, loaded.Collections)
	assert.Equal(t, cfg.Contexts, loaded.Contexts)
	assert.Equal(t, "kb", loaded.GlobalContext)
}

func TestAdd_Validation(t *testing.T) {
	cfg := &Config{}

	assert.ErrorIs(t, cfg.Add(Collection{Name: "Bad Name", Path: "/x"}), ErrInvalidName)
	assert.ErrorIs(t, cfg.Add(Collection{Name: "-leading", Path: "/x"}), ErrInvalidName)

	require.NoError(t, cfg.Add(Collection{Name: "notes", Path: "/x"}))
	assert.ErrorIs(t, cfg.Add(Collection{Name: "notes", Path: "/y"}), ErrAlreadyExists)

	coll, err := cfg.Get("notes")
	require.NoError(t, err)
	assert.Equal(t, DefaultPattern, coll.Pattern)
	assert.True(t, filepath.IsAbs(coll.Path))
}

func TestRemove(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Add(Collection{Name: "notes", Path: "/x"}))
	cfg.SetContext("notes", "infra", "note")
	cfg.SetContext("other", "", "kept")

	require.NoError(t, cfg.Remove("notes"))
	_, err := cfg.Get("notes")
	assert.ErrorIs(t, err, ErrNotFound)

	// Contexts for the removed collection go with it
	require.Len(t, cfg.Contexts, 1)
	assert.Equal(t, "other", cfg.Contexts[0].Collection)

	assert.ErrorIs(t, cfg.Remove("notes"), ErrNotFound)
}

func TestRename(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Add(Collection{Name: "notes", Path: "/x"}))
	require.NoError(t, cfg.Add(Collection{Name: "work", Path: "/y"}))
	cfg.SetContext("notes", "", "annotation")

	assert.ErrorIs(t, cfg.Rename("notes", "work"), ErrAlreadyExists)
	assert.ErrorIs(t, cfg.Rename("missing", "fresh"), ErrNotFound)

	require.NoError(t, cfg.Rename("notes", "journal"))
	_, err := cfg.Get("journal")
	require.NoError(t, err)
	assert.Equal(t, "journal", cfg.Contexts[0].Collection)
}

func TestSetAndRemoveContext(t *testing.T) {
	cfg := &Config{}

	cfg.SetContext("notes", "infra", "first")
	cfg.SetContext("notes", "infra", "second")
	require.Len(t, cfg.Contexts, 1)
	assert.Equal(t, "second", cfg.Contexts[0].Context)

	assert.True(t, cfg.RemoveContext("notes", "infra"))
	assert.False(t, cfg.RemoveContext("notes", "infra"))
	assert.Empty(t, cfg.Contexts)
}
