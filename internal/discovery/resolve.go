package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"lattice/internal/analyzer"
)

// resolveEntries turns entry paths and glob patterns into a sorted list of
// normalized absolute file paths. A path that exists verbatim is used as
// is; everything else is treated as a glob matched against workDir. The
// walk fails only when nothing at all resolves; patterns that matched
// nothing alongside at least one resolved entry are reported back, not
// fatal.
func (d *Discoverer) resolveEntries(entries []string) (resolved, unmatched []string, err error) {
	seen := make(map[string]bool)
	for _, entry := range entries {
		abs := entry
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(d.workDir, entry)
		}
		abs = filepath.Clean(abs)

		if info, statErr := os.Stat(abs); statErr == nil && !info.IsDir() {
			if !seen[abs] {
				seen[abs] = true
				resolved = append(resolved, abs)
			}
			continue
		}

		matches, globErr := d.expandPattern(entry)
		if globErr != nil {
			return nil, nil, globErr
		}
		if len(matches) == 0 {
			unmatched = append(unmatched, entry)
			continue
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				resolved = append(resolved, m)
			}
		}
	}

	if len(resolved) == 0 {
		return nil, nil, &EntryNotFoundError{Patterns: entries}
	}
	sort.Strings(resolved)
	return resolved, unmatched, nil
}

// expandPattern matches pattern against workDir-relative paths using '/'
// as the separator, so "src/**/*.ts" behaves the same on every platform.
func (d *Discoverer) expandPattern(pattern string) ([]string, error) {
	g, err := glob.Compile(filepath.ToSlash(pattern), '/')
	if err != nil {
		return nil, err
	}

	var matches []string
	walkErr := filepath.WalkDir(d.workDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path == d.workDir {
				return nil
			}
			if entry.Name() == "node_modules" || strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(d.workDir, path)
		if relErr != nil {
			return relErr
		}
		if g.Match(filepath.ToSlash(rel)) {
			matches = append(matches, filepath.Clean(path))
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return matches, nil
}

// ResolveSpecifier maps an import specifier written in fromFile to an
// absolute path on disk. Relative specifiers are probed against the
// importing file's directory: the literal path first, then each known
// extension, then a directory index file. Returns "" when nothing exists.
func ResolveSpecifier(fromFile, specifier string) string {
	base := filepath.Clean(filepath.Join(filepath.Dir(fromFile), specifier))

	if analyzer.SupportsFile(base) && fileExists(base) {
		return base
	}
	for _, ext := range analyzer.Extensions {
		if candidate := base + ext; fileExists(candidate) {
			return candidate
		}
	}
	for _, ext := range analyzer.Extensions {
		if candidate := filepath.Join(base, "index"+ext); fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
