// Package archive compresses the document store into a timestamped zip and
// clears it.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyStore is returned when there is nothing to archive.
var ErrEmptyStore = errors.New("document store is empty")

// NamePrefix and timeLayout form archive names like coleta_html_20240131_150405.zip.
const (
	NamePrefix = "coleta_html_"
	timeLayout = "20060102_150405"
)

// Archiver writes zips of a source directory.
type Archiver struct {
	logger *zap.Logger
}

// New returns an Archiver.
func New(logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{logger: logger.Named("archive")}
}

// Archive zips every regular file under srcDir into destDir, then removes
// srcDir. A missing or empty srcDir returns ErrEmptyStore and touches nothing.
// If writing the zip fails the partial archive is removed and srcDir is kept.
func (a *Archiver) Archive(srcDir, destDir string, now time.Time) (string, error) {
	files, err := listFiles(srcDir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		a.logger.Warn("no documents to archive", zap.String("dir", srcDir))
		return "", ErrEmptyStore
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	dest := filepath.Join(destDir, NamePrefix+now.Format(timeLayout)+".zip")
	a.logger.Info("archiving documents", zap.String("dest", dest), zap.Int("files", len(files)))
	if err := writeZip(dest, srcDir, files); err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	if err := os.RemoveAll(srcDir); err != nil {
		return dest, fmt.Errorf("clear document store: %w", err)
	}
	a.logger.Info("archive written, document store cleared", zap.String("dest", dest))
	return dest, nil
}

func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	return files, nil
}

func writeZip(dest, root string, files []string) error {
	// #nosec G304 -- destination comes from operator configuration.
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(out)
	for _, rel := range files {
		if err := addFile(zw, root, rel); err != nil {
			_ = zw.Close()
			_ = out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("finish archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, root, rel string) error {
	path := filepath.Join(root, rel)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header %s: %w", rel, err)
	}
	hdr.Name = filepath.ToSlash(rel)
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", rel, err)
	}
	// #nosec G304 -- path is inside the walked store directory.
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("compress %s: %w", rel, err)
	}
	return nil
}
