package utility

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
	"go.uber.org/zap"
)

func (u *Utility) createDirectory(c calls.CreateDirectory) calls.DirectoryStatus {
	info, err := os.Stat(c.Path)
	if err == nil && info.IsDir() {
		return calls.DirectoryAlreadyExists
	}

	if err := os.MkdirAll(c.Path, 0o755); err != nil {
		u.log.Warn("failed to create directory", zap.String("path", c.Path), zap.Error(err))
		return calls.DirectoryFailed
	}

	return calls.DirectoryCreated
}

func (u *Utility) deletePath(c calls.DeletePath) error {
	if err := os.RemoveAll(c.Path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", c.Path, err)
	}
	return nil
}

func (u *Utility) writeToFile(c calls.WriteToFile) error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", c.Path, err)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if c.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.Path, err)
	}
	defer file.Close()

	if _, err := io.WriteString(file, c.Contents); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.Path, err)
	}

	return file.Close()
}

// copyFileOrDirectory replaces the destination with a copy of the
// source, which may be a single file or a directory tree.
func (u *Utility) copyFileOrDirectory(c calls.CopyFileOrDirectory) error {
	info, err := os.Stat(c.Source)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", c.Source, err)
	}

	// copying a path onto itself, or onto a link to it, is a no-op
	if dstInfo, err := os.Stat(c.Destination); err == nil && os.SameFile(info, dstInfo) {
		return nil
	}

	if err := os.RemoveAll(c.Destination); err != nil {
		return fmt.Errorf("failed to clear %s: %w", c.Destination, err)
	}

	if !info.IsDir() {
		if err := os.MkdirAll(filepath.Dir(c.Destination), 0o755); err != nil {
			return fmt.Errorf("failed to create parent of %s: %w", c.Destination, err)
		}
		return copyFile(c.Source, c.Destination, info.Mode())
	}

	return filepath.WalkDir(c.Source, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(c.Source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(c.Destination, rel)

		info, err := entry.Info()
		if err != nil {
			return err
		}

		switch {
		case entry.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode())
		default:
			u.log.Debug("skipping special file", zap.String("path", path))
			return nil
		}
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		return errors.Join(err, out.Close())
	}

	return out.Close()
}
