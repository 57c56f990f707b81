package finder

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolvePaths makes every non-empty path absolute
func ResolvePaths(paths []string) ([]string, error) {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		abs = append(abs, a)
	}
	return abs, nil
}

// IsIgnored reports whether the absolute path name belongs to one of the
// ignored absolute paths. Besides the path itself that covers everything
// below it, SQLite side files such as analysis.db-wal and rotated log
// backups such as filestatus-2024-05-01T12-00-00.000.log.
func IsIgnored(ignore []string, name string) bool {
	for _, p := range ignore {
		if name == p ||
			strings.HasPrefix(name, p+string(filepath.Separator)) ||
			strings.HasPrefix(name, p+"-") {
			return true
		}
		if filepath.Dir(name) != filepath.Dir(p) {
			continue
		}
		ext := filepath.Ext(p)
		stem := strings.TrimSuffix(filepath.Base(p), ext)
		base := filepath.Base(name)
		if ext != "" && strings.HasPrefix(base, stem+"-") &&
			(strings.HasSuffix(base, ext) || strings.HasSuffix(base, ext+".gz")) {
			return true
		}
	}
	return false
}
