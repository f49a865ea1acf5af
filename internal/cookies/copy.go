package cookies

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SafeCopy copies a SQLite database and its -wal and -shm companions
// into a fresh temporary directory. The caller must call cleanup.
func SafeCopy(srcPath string) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "jetta-cookies-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp directory: %w", err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	base := filepath.Join(dir, filepath.Base(srcPath))
	if err := copyFile(srcPath, base); err != nil {
		cleanup()
		return "", nil, err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(srcPath + suffix); err == nil {
			// companions are best effort; the main file is consistent on its own
			_ = copyFile(srcPath+suffix, base+suffix)
		}
	}
	return dir, cleanup, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}
