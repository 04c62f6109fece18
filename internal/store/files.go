package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jward/protopool/internal/symbols"
)

// PutFile stores fd, replacing any previous record with the same name along
// with its symbols and dependencies. It reports false without writing when
// the stored record is byte-identical.
func (s *Store) PutFile(fd *descriptorpb.FileDescriptorProto) (bool, error) {
	hash, data, err := ComputeFileHash(fd)
	if err != nil {
		return false, fmt.Errorf("put file: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("put file: begin: %w", err)
	}
	defer tx.Rollback()

	changed, err := putFileTx(tx, fd, hash, data, time.Now())
	if err != nil {
		return false, fmt.Errorf("put file %q: %w", fd.GetName(), err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("put file: commit: %w", err)
	}
	return changed, nil
}

func putFileTx(tx *sql.Tx, fd *descriptorpb.FileDescriptorProto, hash string, data []byte, now time.Time) (bool, error) {
	name := fd.GetName()
	if name == "" {
		return false, fmt.Errorf("record has no name")
	}

	var oldHash string
	err := tx.QueryRow("SELECT hash FROM files WHERE name = ?", name).Scan(&oldHash)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return false, fmt.Errorf("look up: %w", err)
	case oldHash == hash:
		return false, nil
	default:
		if _, err := tx.Exec("DELETE FROM files WHERE name = ?", name); err != nil {
			return false, fmt.Errorf("delete previous: %w", err)
		}
	}

	res, err := tx.Exec(
		"INSERT INTO files (name, package, syntax, hash, proto, last_indexed) VALUES (?, ?, ?, ?, ?, ?)",
		name, fd.GetPackage(), fd.GetSyntax(), hash, data, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert: %w", err)
	}
	fileID, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("insert: %w", err)
	}

	public := make(map[int]bool, len(fd.GetPublicDependency()))
	for _, i := range fd.GetPublicDependency() {
		public[int(i)] = true
	}
	for i, dep := range fd.GetDependency() {
		if _, err := tx.Exec(
			"INSERT INTO dependencies (file_id, ordinal, name, public) VALUES (?, ?, ?, ?)",
			fileID, i, dep, public[i],
		); err != nil {
			return false, fmt.Errorf("insert dependency %q: %w", dep, err)
		}
	}

	for _, sym := range symbols.Collect(fd) {
		if _, err := tx.Exec(
			"INSERT INTO symbols (file_id, name, kind) VALUES (?, ?, ?)",
			fileID, sym.Name, string(sym.Kind),
		); err != nil {
			return false, fmt.Errorf("insert symbol %q: %w", sym.Name, err)
		}
	}
	return true, nil
}

// FindFileByName returns the stored record, or nil if there is none.
func (s *Store) FindFileByName(name string) (*descriptorpb.FileDescriptorProto, error) {
	var data []byte
	err := s.db.QueryRow("SELECT proto FROM files WHERE name = ?", name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by name: %w", err)
	}
	return decodeFile(name, data)
}

// FindFileContainingSymbol returns the record declaring symbol, or nil if no
// stored file does. Members of a declared message or service (fields,
// oneofs, methods) resolve to the file of the nearest declared ancestor.
func (s *Store) FindFileContainingSymbol(symbol string) (*descriptorpb.FileDescriptorProto, error) {
	symbol = symbols.Normalize(symbol)
	for name := symbol; name != ""; name = parent(name) {
		var fileName string
		var data []byte
		err := s.db.QueryRow(
			`SELECT f.name, f.proto FROM symbols s JOIN files f ON f.id = s.file_id
			WHERE s.name = ? ORDER BY f.id LIMIT 1`, name,
		).Scan(&fileName, &data)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("file containing symbol: %w", err)
		}
		return decodeFile(fileName, data)
	}
	return nil, nil
}

// File returns the row for name without decoding the record, or nil.
func (s *Store) File(name string) (*File, error) {
	f := &File{}
	err := s.db.QueryRow(
		"SELECT id, name, package, syntax, hash, last_indexed FROM files WHERE name = ?", name,
	).Scan(&f.ID, &f.Name, &f.Package, &f.Syntax, &f.Hash, &f.LastIndexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	return f, nil
}

// Files returns every stored file ordered by name.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT id, name, package, syntax, hash, last_indexed FROM files ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.Name, &f.Package, &f.Syntax, &f.Hash, &f.LastIndexed); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// SymbolsByFile returns the symbols a stored file declares.
func (s *Store) SymbolsByFile(fileID int64) ([]*Symbol, error) {
	rows, err := s.db.Query("SELECT id, file_id, name, kind FROM symbols WHERE file_id = ? ORDER BY id", fileID)
	if err != nil {
		return nil, fmt.Errorf("symbols by file: %w", err)
	}
	defer rows.Close()
	var out []*Symbol
	for rows.Next() {
		sym := &Symbol{}
		if err := rows.Scan(&sym.ID, &sym.FileID, &sym.Name, &sym.Kind); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// DependenciesOf returns a stored file's imports in declaration order.
func (s *Store) DependenciesOf(fileID int64) ([]*Dependency, error) {
	rows, err := s.db.Query(
		"SELECT file_id, ordinal, name, public FROM dependencies WHERE file_id = ? ORDER BY ordinal", fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("dependencies: %w", err)
	}
	defer rows.Close()
	var out []*Dependency
	for rows.Next() {
		d := &Dependency{}
		if err := rows.Scan(&d.FileID, &d.Ordinal, &d.Name, &d.Public); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteFiles removes the named files with their symbols and dependencies.
// It returns how many files existed.
func (s *Store) DeleteFiles(names ...string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}
	res, err := s.db.Exec(
		"DELETE FROM files WHERE name IN ("+placeholderList(len(names))+")",
		stringsToArgs(names)...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete files: %w", err)
	}
	return res.RowsAffected()
}

func decodeFile(name string, data []byte) (*descriptorpb.FileDescriptorProto, error) {
	fd := &descriptorpb.FileDescriptorProto{}
	if err := proto.Unmarshal(data, fd); err != nil {
		return nil, fmt.Errorf("decode %q: %w", name, err)
	}
	return fd, nil
}

func parent(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[:i]
}
