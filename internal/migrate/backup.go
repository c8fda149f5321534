package migrate

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"workmesh/internal/paths"
	"workmesh/internal/wmerr"
)

// backupMeshDir archives the mesh dir to
// <mesh>/migrations/<timestamp>.tar.zst before a destructive apply.
// The migrations dir itself is excluded.
func (m *Migrator) backupMeshDir(layout paths.Layout) (string, error) {
	backupDir := filepath.Join(layout.MeshDir, "migrations")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", wmerr.IO(err, "creating %s", backupDir)
	}
	stamp := m.Clock.Now().UTC().Format("20060102150405")
	target := filepath.Join(backupDir, stamp+".tar.zst")

	out, err := os.Create(target)
	if err != nil {
		return "", wmerr.IO(err, "creating %s", target)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return "", wmerr.IO(err, "opening zstd writer")
	}
	tw := tar.NewWriter(zw)

	walkErr := filepath.WalkDir(layout.MeshDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(layout.MeshDir, path)
		if err != nil || rel == "." {
			return err
		}
		if rel == "migrations" || strings.HasPrefix(rel, "migrations"+string(filepath.Separator)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		tw.Close()
		zw.Close()
		return "", wmerr.IO(walkErr, "archiving %s", layout.MeshDir)
	}
	if err := tw.Close(); err != nil {
		return "", wmerr.IO(err, "finishing archive")
	}
	if err := zw.Close(); err != nil {
		return "", wmerr.IO(err, "finishing archive")
	}
	return target, nil
}
