// Package pathops implements the blocking filesystem primitives the async
// engine's worker goroutine calls. Exists, RemoveFile, CopyFile and
// CopyDirectory check entry types without following symlinks and reject
// symlinks and special files (CopyDirectory skips such children). Move,
// ReadFile, WriteFile and AppendToFile do not check the entry type and
// follow symlinks as the os package does.
package pathops

import (
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/swapfs/asyncfs/lib/errkind"
)

func statKind(info os.FileInfo) (regular, dir bool, ok bool) {
	mode := info.Mode()
	switch {
	case mode.IsRegular():
		return true, false, true
	case mode.IsDir():
		return false, true, true
	default:
		return false, false, false
	}
}

// Exists reports whether p refers to an existing regular file or
// directory. A non-existent path is not an error: it returns (false, nil).
// A symlink or special file yields invalid_argument.
func Exists(p string) (bool, error) {
	info, err := os.Lstat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errkind.Wrap(errkind.InternalFailure, err, "stat %s", p)
	}
	if _, _, ok := statKind(info); !ok {
		return false, errkind.New(errkind.InvalidArgument, "%s is a symlink or special file", p)
	}
	return true, nil
}

// RemoveFile removes a regular file, returning false if it does not exist.
// Removing a directory or special file fails with invalid_argument.
func RemoveFile(p string) (bool, error) {
	info, err := os.Lstat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errkind.Wrap(errkind.InternalFailure, err, "stat %s", p)
	}
	regular, _, ok := statKind(info)
	if !ok || !regular {
		return false, errkind.New(errkind.InvalidArgument, "%s is not a regular file", p)
	}
	if err := os.Remove(p); err != nil {
		return false, errkind.Wrap(errkind.InternalFailure, err, "remove %s", p)
	}
	return true, nil
}

// Move renames from to to. If to is an existing directory, from is moved
// into it under its own leaf name.
func Move(from, to string) error {
	dest, err := resolveDestination(from, to)
	if err != nil {
		return err
	}
	if err := os.Rename(from, dest); err != nil {
		if os.IsNotExist(err) {
			return errkind.Wrap(errkind.OpenFailure, err, "move %s to %s", from, dest)
		}
		return errkind.Wrap(errkind.InternalFailure, err, "move %s to %s", from, dest)
	}
	return nil
}

// CopyFile copies a regular file from to to. If to is an existing
// directory, the copy lands at to/<from's leaf name>. from must not equal
// the resolved destination.
func CopyFile(from, to string) error {
	srcInfo, err := os.Lstat(from)
	if err != nil {
		return errkind.Wrap(errkind.OpenFailure, err, "stat source %s", from)
	}
	regular, _, ok := statKind(srcInfo)
	if !ok || !regular {
		return errkind.New(errkind.InvalidArgument, "%s is not a regular file", from)
	}

	dest, err := resolveDestination(from, to)
	if err != nil {
		return err
	}
	if sameFile(from, dest) {
		return errkind.New(errkind.OperationNotPermitted, "source and destination are the same file: %s", from)
	}

	src, err := os.Open(from)
	if err != nil {
		return errkind.Wrap(errkind.OpenFailure, err, "open source %s", from)
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return errkind.Wrap(errkind.OpenFailure, err, "open destination %s", dest)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errkind.Wrap(errkind.WriteFailure, err, "copy %s to %s", from, dest)
	}
	if err := dst.Close(); err != nil {
		return errkind.Wrap(errkind.WriteFailure, err, "close %s", dest)
	}
	return nil
}

// CopyDirectory recursively copies from to to. If to already exists as a
// directory, the copy lands at to/<from's leaf name>. Non-regular,
// non-directory entries are skipped. Children are copied concurrently;
// a failure does not stop the other copies, and the first error is
// returned once all of them have finished.
func CopyDirectory(from, to string) error {
	srcInfo, err := os.Lstat(from)
	if err != nil {
		return errkind.Wrap(errkind.OpenFailure, err, "stat source %s", from)
	}
	if _, isDir, ok := statKind(srcInfo); !ok || !isDir {
		return errkind.New(errkind.InvalidArgument, "%s is not a directory", from)
	}

	dest, err := resolveDestination(from, to)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, srcInfo.Mode().Perm()); err != nil {
		return errkind.Wrap(errkind.InternalFailure, err, "create destination %s", dest)
	}

	entries, err := os.ReadDir(from)
	if err != nil {
		return errkind.Wrap(errkind.ReadFailure, err, "list %s", from)
	}

	var g errgroup.Group
	for _, entry := range entries {
		entry := entry
		srcChild := filepath.Join(from, entry.Name())
		dstChild := filepath.Join(dest, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return errkind.Wrap(errkind.ReadFailure, err, "stat %s", srcChild)
		}
		switch {
		case info.Mode().IsRegular():
			g.Go(func() error { return CopyFile(srcChild, dstChild) })
		case info.Mode().IsDir():
			g.Go(func() error { return CopyDirectory(srcChild, dstChild) })
		default:
			// symlinks and special files are silently ignored.
		}
	}
	return g.Wait()
}

// RemoveDirectory recursively removes p, returning the number of entries
// removed (files and directories), or 0 if p does not exist.
func RemoveDirectory(p string) (int, error) {
	exists, err := isDir(p)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	count := 0
	err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return 0, errkind.Wrap(errkind.InternalFailure, err, "walk %s", p)
	}
	if err := os.RemoveAll(p); err != nil {
		return 0, errkind.Wrap(errkind.InternalFailure, err, "remove %s", p)
	}
	return count, nil
}

// CreateDirectory creates p. If parents is true, intermediate directories
// are created as needed and an already-existing directory is not an error.
// If parents is false, the parent of p must already exist and p must not
// already exist.
func CreateDirectory(p string, parents bool) (bool, error) {
	if parents {
		exists, err := isDir(p)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return false, errkind.Wrap(errkind.InternalFailure, err, "mkdir -p %s", p)
		}
		return true, nil
	}

	parent := filepath.Dir(p)
	parentExists, err := isDir(parent)
	if err != nil {
		return false, err
	}
	if !parentExists {
		return false, errkind.New(errkind.InvalidArgument, "parent directory %s does not exist", parent)
	}
	if _, err := os.Lstat(p); err == nil {
		return false, errkind.New(errkind.InvalidArgument, "%s already exists", p)
	}
	if err := os.Mkdir(p, 0o755); err != nil {
		return false, errkind.Wrap(errkind.InternalFailure, err, "mkdir %s", p)
	}
	return true, nil
}

// ReadFile reads the whole content of a regular file.
func ReadFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkind.Wrap(errkind.OpenFailure, err, "open %s", p)
		}
		return nil, errkind.Wrap(errkind.ReadFailure, err, "read %s", p)
	}
	return data, nil
}

// WriteFile truncates (or creates) p and writes data to it.
func WriteFile(p string, data []byte) error {
	if err := os.WriteFile(p, data, 0o644); err != nil {
		if os.IsNotExist(err) {
			return errkind.Wrap(errkind.OpenFailure, err, "open %s", p)
		}
		return errkind.Wrap(errkind.WriteFailure, err, "write %s", p)
	}
	return nil
}

// AppendToFile creates p if absent and appends data to its current content.
func AppendToFile(p string, data []byte) error {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return errkind.Wrap(errkind.OpenFailure, err, "open %s", p)
		}
		return errkind.Wrap(errkind.OpenFailure, err, "open %s", p)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return errkind.Wrap(errkind.AppendFailure, err, "append %s", p)
	}
	return nil
}

func isDir(p string) (bool, error) {
	info, err := os.Lstat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errkind.Wrap(errkind.InternalFailure, err, "stat %s", p)
	}
	return info.IsDir(), nil
}

// resolveDestination implements the "copy/move into existing directory
// under source's leaf name" rule shared by Move, CopyFile, and
// CopyDirectory.
func resolveDestination(from, to string) (string, error) {
	dirExists, err := isDir(to)
	if err != nil {
		return "", err
	}
	if dirExists {
		return filepath.Join(to, filepath.Base(from)), nil
	}
	return to, nil
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
