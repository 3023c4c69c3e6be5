package snapshot

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// writeTar streams root's file tree into w as a tar archive with paths
// relative to root. Returns the number of regular files written.
func writeTar(w io.Writer, root string) (int64, error) {
	info, err := os.Stat(root)
	if err != nil {
		return 0, fmt.Errorf("stat data dir: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("data dir %s is not a directory", root)
	}

	tw := tar.NewWriter(w)
	var files int64

	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		fi, err := entry.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		switch {
		case fi.IsDir():
			hdr.Name += "/"
			return tw.WriteHeader(hdr)
		case fi.Mode().IsRegular():
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			src, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, src)
			_ = src.Close()
			if err != nil {
				return err
			}
			files++
			return nil
		default:
			// Sockets, pipes and devices have no place in a backup.
			return nil
		}
	})
	if err != nil {
		return files, fmt.Errorf("archive data dir: %w", err)
	}
	if err := tw.Close(); err != nil {
		return files, fmt.Errorf("finish archive: %w", err)
	}
	return files, nil
}

// extractTar unpacks a tar stream into dest, rejecting entries that would
// escape it.
func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		target, err := securePath(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(hdr.Mode)&0o777); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent of %s: %w", target, err)
			}
			dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return fmt.Errorf("create file %s: %w", target, err)
			}
			if _, err := io.Copy(dst, tr); err != nil {
				_ = dst.Close()
				return fmt.Errorf("write file %s: %w", target, err)
			}
			if err := dst.Close(); err != nil {
				return fmt.Errorf("close file %s: %w", target, err)
			}
		default:
			// Skip anything the archiver never writes.
		}
	}
}

func securePath(dest, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return filepath.Join(dest, cleaned), nil
}
