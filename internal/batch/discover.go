package batch

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Discovery defaults
var (
	DefaultInclude = []string{"*.ts", "*.tsx", "*.js"}
	DefaultExclude = []string{"node_modules", "dist", "build", ".git", "*.test.ts", "*.spec.ts"}
)

// Discover walks root and returns the sorted paths of regular files whose base
// name matches an include glob and none of whose path segments match an
// exclude glob. Hidden directories are skipped. Nil include or exclude lists
// use the defaults.
func Discover(root string, include, exclude []string) ([]string, error) {
	if include == nil {
		include = DefaultInclude
	}
	if exclude == nil {
		exclude = DefaultExclude
	}
	for _, p := range append(append([]string{}, include...), exclude...) {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			// Skip hidden and excluded directories
			if strings.HasPrefix(d.Name(), ".") || matchesAny(exclude, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if !matchesAny(include, d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
			if matchesAny(exclude, segment) {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover files in %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
