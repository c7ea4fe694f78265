package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// ErrExists reports that an exclusive copy found its destination already present.
var ErrExists = errors.New("destination exists")

// CopyExclusive copies src to dst, failing with ErrExists when dst already
// exists. A partially written dst is removed on error.
func CopyExclusive(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dst)
		}
	}()
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	return replaceWith(path, mode, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}, nil)
}

// CopyFileVerified copies src over dst through a temp file. The temp file is
// read back and must match the source's size and SHA-256 before it replaces
// dst, so a failed copy leaves any previous dst intact.
func CopyFileVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	srcHash := sha256.New()
	var copied int64
	fill := func(w io.Writer) error {
		n, err := io.Copy(w, io.TeeReader(in, srcHash))
		copied = n
		return err
	}
	verify := func(tmpName string) error {
		if copied != info.Size() {
			return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), copied)
		}
		sum, err := fileSHA256(tmpName)
		if err != nil {
			return fmt.Errorf("read back copy: %w", err)
		}
		if !bytes.Equal(sum, srcHash.Sum(nil)) {
			return errors.New("copy hash mismatch: file corrupted during copy")
		}
		return nil
	}
	return replaceWith(dst, info.Mode().Perm(), fill, verify)
}

// MoveFile renames src to dst, replacing dst if present. Across filesystems
// it falls back to a verified copy followed by removal of src.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := CopyFileVerified(src, dst); err != nil {
		return fmt.Errorf("copy across devices: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// replaceWith fills a hidden temp file in path's directory, optionally checks
// it, then renames it over path. The temp file never outlives a failure.
func replaceWith(path string, mode os.FileMode, fill func(io.Writer) error, check func(tmpName string) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if err = fill(tmp); err == nil {
		err = tmp.Chmod(mode)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if check != nil {
		if err = check(tmpName); err != nil {
			return err
		}
	}
	return os.Rename(tmpName, path)
}

func fileSHA256(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
