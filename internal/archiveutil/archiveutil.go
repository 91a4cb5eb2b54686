// Package archiveutil wraps mholt/archives for the two archive operations
// the panel needs: extracting an arbitrary modpack archive, and creating a
// tar+gzip backup of a server directory.
package archiveutil

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/mholt/archives"
)

// Extract identifies archivePath's format and extracts every entry
// underneath destDir, preserving the archive's internal directory layout.
func Extract(ctx context.Context, archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	format, _, err := archives.Identify(ctx, archivePath, f)
	if err != nil {
		return err
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return errNotExtractable{archivePath}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	return extractor.Extract(ctx, f, func(ctx context.Context, fi archives.FileInfo) error {
		target := filepath.Join(destDir, fi.NameInArchive)
		if fi.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := fi.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()

		_, err = io.Copy(out, src)
		return err
	})
}

// Create tars+gzips every file under sourceDir (skipping names in exclude)
// into a fresh archive at destArchivePath.
func Create(ctx context.Context, sourceDir, destArchivePath string, exclude map[string]bool) error {
	fileMap := map[string]string{sourceDir: ""}
	files, err := archives.FilesFromDisk(ctx, nil, fileMap)
	if err != nil {
		return err
	}

	filtered := files[:0]
	for _, fi := range files {
		if exclude[filepath.Base(fi.NameInArchive)] {
			continue
		}
		filtered = append(filtered, fi)
	}

	out, err := os.Create(destArchivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	format := archives.CompressedArchive{
		Compression: archives.Gz{},
		Archival:    archives.Tar{},
	}
	return format.Archive(ctx, out, filtered)
}

type errNotExtractable struct{ path string }

func (e errNotExtractable) Error() string {
	return "archive format at " + e.path + " does not support extraction"
}
