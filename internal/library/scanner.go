package library

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ScannedFile is a source document found under the library root.
type ScannedFile struct {
	RelPath string // Relative path from the root, with forward slashes
	AbsPath string // Path usable with os.Open
	Size    int64
}

// Name returns the file name, used as the unit source.
func (f ScannedFile) Name() string {
	return filepath.Base(f.AbsPath)
}

// Scan walks root and returns every file whose extension is in exts,
// sorted by relative path. Hidden directories and files are skipped.
// Extension matching is case-insensitive; nil exts matches every file.
func Scan(ctx context.Context, root string, exts []string) ([]ScannedFile, error) {
	wanted := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		wanted[strings.ToLower(e)] = struct{}{}
	}

	var files []ScannedFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		if len(wanted) > 0 {
			if _, ok := wanted[strings.ToLower(filepath.Ext(path))]; !ok {
				return nil
			}
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		files = append(files, ScannedFile{
			RelPath: filepath.ToSlash(relPath),
			AbsPath: path,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})
	return files, nil
}
