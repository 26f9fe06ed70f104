package tokencache

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// writeFileAtomic saves data using temp file + rename for crash safety.
// The temp file is created in the target directory so the rename stays on one
// filesystem, and gets its final permissions before it becomes visible.
func writeFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tempFile, err := afero.TempFile(fs, dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = fs.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return err
	}
	if err := tempFile.Sync(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := fs.Chmod(tempName, perm); err != nil {
		return err
	}

	return fs.Rename(tempName, path)
}
