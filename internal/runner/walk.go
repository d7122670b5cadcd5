package runner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// ListFiles walks root and returns files eligible for scanning: matching
// extensions, outside excluded directories, and under the size cap. Paths are
// returned relative to root in walk order, so repeated scans of the same tree
// see the same list.
func ListFiles(root string, includeExts, excludeDirs []string, maxFileKB int) ([]string, error) {
	exts := make(map[string]bool, len(includeExts))
	for _, e := range includeExts {
		exts[strings.ToLower(e)] = true
	}
	excluded := make(map[string]bool, len(excludeDirs))
	for _, d := range excludeDirs {
		excluded[d] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && excluded[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if maxFileKB > 0 && info.Size() > int64(maxFileKB)*1024 {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}
