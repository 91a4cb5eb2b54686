package provisioning

import (
	"context"
	"os"
	"path/filepath"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/archiveutil"
)

// extractArchive identifies archivePath's format and extracts every entry
// underneath destDir, preserving the archive's internal directory layout.
func extractArchive(ctx context.Context, archivePath, destDir string) error {
	if err := archiveutil.Extract(ctx, archivePath, destDir); err != nil {
		return apierr.New(apierr.InstallerFailed, "modpack archive extraction failed: "+err.Error(), nil)
	}
	return nil
}

// copyOverrides recursively copies srcDir's contents into destDir,
// preserving subdirectory structure.
func copyOverrides(srcDir, destDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}
