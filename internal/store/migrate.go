package store

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations
var migrationFS embed.FS

// migrationFiles returns the .up.sql files under migrations/<dialect>, sorted.
func migrationFiles(dialect string) ([]string, []string, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	stmts := make([]string, 0, len(files))
	for _, f := range files {
		data, err := fs.ReadFile(migrationFS, dir+"/"+f)
		if err != nil {
			return nil, nil, fmt.Errorf("read migration %s: %w", f, err)
		}
		stmts = append(stmts, string(data))
	}
	return files, stmts, nil
}
