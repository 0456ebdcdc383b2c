// Package testutils contains helpers shared by the niiview package tests.
package testutils

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/niivue/niiview/internal/fsext"
)

// MakeMemMapFs creates a new in-memory filesystem with the given files.
//
// The keys of the withFiles map are the paths of the files to create, and the
// values are the contents of the files. The files are created with 644 mode.
func MakeMemMapFs(t testing.TB, withFiles map[string][]byte) fsext.Fs {
	t.Helper()
	fs := fsext.NewMemMapFs()

	for path, data := range withFiles {
		require.NoError(t, fsext.WriteFile(fs, path, data, 0o644))
	}

	return fs
}
