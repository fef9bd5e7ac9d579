package contacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/beacon/internal/models"
)

func TestMemoryDirectoryPrimaryRules(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	require.NoError(t, dir.Add("u1", models.EmergencyContact{ID: "c1", Name: "Alice", Phone: "+1555"}))
	require.NoError(t, dir.Add("u1", models.EmergencyContact{ID: "c2", Name: "Bob", Phone: "+1556"}))

	list, err := dir.ListContacts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsPrimary, "first contact becomes primary")
	assert.False(t, list[1].IsPrimary)

	// Adding a new primary clears the old one
	require.NoError(t, dir.Add("u1", models.EmergencyContact{ID: "c3", Name: "Carol", Phone: "+1557", IsPrimary: true}))
	list, _ = dir.ListContacts(ctx, "u1")
	assert.False(t, list[0].IsPrimary)
	assert.True(t, list[2].IsPrimary)

	// Removing the primary promotes the first remaining contact
	require.NoError(t, dir.Remove("u1", "c3"))
	list, _ = dir.ListContacts(ctx, "u1")
	require.Len(t, list, 2)
	assert.True(t, list[0].IsPrimary)

	require.NoError(t, dir.SetPrimary("u1", "c2"))
	list, _ = dir.ListContacts(ctx, "u1")
	assert.False(t, list[0].IsPrimary)
	assert.True(t, list[1].IsPrimary)

	require.ErrorIs(t, dir.Remove("u1", "missing"), ErrContactNotFound)
	require.ErrorIs(t, dir.SetPrimary("u1", "missing"), ErrContactNotFound)
}

func TestMemoryDirectoryValidation(t *testing.T) {
	dir := NewMemoryDirectory()

	require.ErrorIs(t, dir.Add("u1", models.EmergencyContact{ID: "c1"}), ErrInvalidContact)

	require.NoError(t, dir.Add("u1", models.EmergencyContact{ID: "c1", Name: "Alice", Phone: "+1555"}))
	require.Error(t, dir.Add("u1", models.EmergencyContact{ID: "c1", Name: "Alice", Phone: "+1555"}))
}

func TestMemoryDirectoryListIsCopy(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()
	require.NoError(t, dir.Add("u1", models.EmergencyContact{ID: "c1", Name: "Alice", Phone: "+1555"}))

	list, _ := dir.ListContacts(ctx, "u1")
	list[0].Name = "changed"

	list, _ = dir.ListContacts(ctx, "u1")
	require.Equal(t, "Alice", list[0].Name)

	empty, err := dir.ListContacts(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
users:
  user-1:
    - id: c1
      name: Alice
      phone: "+15550100"
      relationship: sister
    - id: c2
      name: Bob
      phone: "+15550101"
      primary: true
`), 0600))

	dir, err := LoadFile(path)
	require.NoError(t, err)

	list, err := dir.ListContacts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "sister", list[0].Relationship)
	assert.False(t, list[0].IsPrimary)
	assert.True(t, list[1].IsPrimary)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  u1:\n    - id: c1\n"), 0600))
	_, err = LoadFile(path)
	require.ErrorIs(t, err, ErrInvalidContact)
}
