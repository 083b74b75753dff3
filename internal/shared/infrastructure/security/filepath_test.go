package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilePath(t *testing.T) {
	dir := t.TempDir()

	t.Run("rejects empty path", func(t *testing.T) {
		_, err := ValidateFilePath("")
		assert.ErrorIs(t, err, ErrEmptyPath)
	})

	t.Run("rejects shell metacharacters", func(t *testing.T) {
		for _, p := range []string{"a;rm -rf", "x|y", "$(id)", "a`b`"} {
			_, err := ValidateFilePath(p)
			assert.Error(t, err, p)
		}
	})

	t.Run("cleans missing paths", func(t *testing.T) {
		got, err := ValidateFilePath(filepath.Join(dir, "a", "..", "phrases.yaml"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "phrases.yaml"), got)
	})

	t.Run("resolves symlinks", func(t *testing.T) {
		target := filepath.Join(dir, "target.yaml")
		require.NoError(t, os.WriteFile(target, []byte("tones: {}"), 0o600))
		link := filepath.Join(dir, "link.yaml")
		require.NoError(t, os.Symlink(target, link))

		got, err := ValidateFilePath(link)
		require.NoError(t, err)

		want, err := filepath.EvalSymlinks(target)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func TestSafeReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tones: {}"), 0o600))

	data, err := SafeReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tones: {}", string(data))

	_, err = SafeReadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateExecutable(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0o600))
	exe := filepath.Join(dir, "exe")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o700))

	_, err := ValidateExecutable(plain)
	assert.ErrorIs(t, err, ErrNotExecutable)

	_, err = ValidateExecutable(dir)
	assert.ErrorIs(t, err, ErrNotExecutable)

	got, err := ValidateExecutable(exe)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}
