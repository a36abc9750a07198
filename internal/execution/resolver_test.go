package execution

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fms/pkg/errors"
)

func TestSymlinkResolver(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "tool")
	require.NoError(t, os.WriteFile(target, []byte("#!/bin/sh\n"), 0o755))
	link := filepath.Join(dir, "shortcut")
	require.NoError(t, os.Symlink(target, link))

	want, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)

	got, err := SymlinkResolver{}.Resolve(link)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSymlinkResolverMissing(t *testing.T) {
	_, err := SymlinkResolver{}.Resolve(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, errors.TargetNotFound))

	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), link))
	_, err = SymlinkResolver{}.Resolve(link)
	assert.True(t, errors.Is(err, errors.TargetNotFound))
}

func TestSymlinkResolverRejectsDirectory(t *testing.T) {
	_, err := SymlinkResolver{}.Resolve(t.TempDir())
	assert.True(t, errors.Is(err, errors.TargetResolveFailed))

	_, err = SymlinkResolver{}.Resolve("")
	assert.True(t, errors.Is(err, errors.ValidationFailed))
}
