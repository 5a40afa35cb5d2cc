package scan

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/halcyonlabs/dupscan/processor"
)

// skipDirs are directory names excluded from discovery.
var skipDirs = map[string]struct{}{
	".git":         {},
	"vendor":       {},
	"node_modules": {},
	"__pycache__":  {},
	".venv":        {},
	"testdata":     {},
}

// supportedExtensions maps file extensions to language tags.
var supportedExtensions = map[string]string{
	".go": "go",
	".py": "python",
}

// DiscoverFiles walks root and returns every supported source file as a
// FileRef with a root-relative, slash-separated path. Hidden directories
// and common dependency trees are skipped.
func DiscoverFiles(root string) ([]processor.FileRef, error) {
	var files []processor.FileRef

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			return nil
		}

		lang, ok := supportedExtensions[filepath.Ext(name)]
		if !ok {
			return nil
		}
		if strings.HasSuffix(name, "_test.go") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, processor.FileRef{
			Path:     filepath.ToSlash(rel),
			Language: lang,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
