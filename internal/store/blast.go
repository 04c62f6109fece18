package store

import (
	"fmt"
	"sort"
)

// FilesImporting returns the names of stored files that import any of the
// given files directly.
func (s *Store) FilesImporting(names ...string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(
		`SELECT DISTINCT f.name FROM dependencies d JOIN files f ON f.id = d.file_id
		WHERE d.name IN (`+placeholderList(len(names))+`) ORDER BY f.name`,
		stringsToArgs(names)...,
	)
	if err != nil {
		return nil, fmt.Errorf("files importing: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan file name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Dependents returns every stored file that imports name directly or
// transitively, sorted. These are the files whose built form goes stale
// when name changes.
func (s *Store) Dependents(name string) ([]string, error) {
	seen := map[string]bool{name: true}
	frontier := []string{name}
	var out []string
	for len(frontier) > 0 {
		next, err := s.FilesImporting(frontier...)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, n := range next {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
			frontier = append(frontier, n)
		}
	}
	sort.Strings(out)
	return out, nil
}
