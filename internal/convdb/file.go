package convdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samcharles93/convtune/internal/logger"
)

// FileStore keeps one text file per device under Root:
// <device>.cd.pdb.txt holds "<key> <value>" lines and <device>.cd.rdb.txt
// holds one pending key per line.
type FileStore struct {
	Root string
	Log  logger.Logger
}

// NewFileStore returns a FileStore rooted at root.
func NewFileStore(root string, log logger.Logger) *FileStore {
	if log == nil {
		log = logger.Discard()
	}
	return &FileStore{Root: root, Log: log}
}

var _ Store = (*FileStore)(nil)

// DatabasePath is the config file of device.
func (s *FileStore) DatabasePath(device string) string {
	return filepath.Join(s.Root, device+dbSuffix)
}

// RequestLogPath is the request log of device.
func (s *FileStore) RequestLogPath(device string) string {
	return filepath.Join(s.Root, device+requestSuffix)
}

func (s *FileStore) log() logger.Logger {
	if s.Log == nil {
		return logger.Discard()
	}
	return s.Log
}

// ReadDatabase loads the device's config file. A missing file is an empty
// database. Lines without a space are skipped.
func (s *FileStore) ReadDatabase(device string) (map[string]string, error) {
	path := s.DatabasePath(device)
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	db := make(map[string]string, len(lines))
	for _, line := range lines {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			s.log().Warn("skipping malformed config line", "path", path, "line", line)
			continue
		}
		db[key] = value
	}
	return db, nil
}

// WriteDatabase replaces the device's config file with db, sorted by key.
func (s *FileStore) WriteDatabase(device string, db map[string]string) error {
	keys := make([]string, 0, len(db))
	for k := range db {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(' ')
		b.WriteString(db[k])
		b.WriteByte('\n')
	}
	return writeFile(s.DatabasePath(device), b.String())
}

// Lookup returns the value stored for key, if any.
func (s *FileStore) Lookup(device, key string) (string, bool, error) {
	db, err := s.ReadDatabase(device)
	if err != nil {
		return "", false, err
	}
	v, ok := db[key]
	return v, ok, nil
}

// Upsert sets key to value with a full read-modify-write cycle.
func (s *FileStore) Upsert(device, key, value string) error {
	db, err := s.ReadDatabase(device)
	if err != nil {
		return err
	}
	db[key] = value
	return s.WriteDatabase(device, db)
}

// ReadRequestLog returns the pending keys in insertion order.
func (s *FileStore) ReadRequestLog(device string) ([]string, error) {
	lines, err := readLines(s.RequestLogPath(device))
	if err != nil {
		return nil, err
	}
	out := lines[:0]
	for _, line := range lines {
		if !slices.Contains(out, line) {
			out = append(out, line)
		}
	}
	return out, nil
}

// AppendIfAbsent adds key to the request log unless it is already there.
func (s *FileStore) AppendIfAbsent(device, key string) error {
	keys, err := s.ReadRequestLog(device)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return s.writeRequestLog(device, append(keys, key))
}

// RemoveIfPresent drops key from the request log. The file is not touched
// when the key is absent.
func (s *FileStore) RemoveIfPresent(device, key string) error {
	keys, err := s.ReadRequestLog(device)
	if err != nil {
		return err
	}
	i := slices.Index(keys, key)
	if i < 0 {
		return nil
	}
	return s.writeRequestLog(device, slices.Delete(keys, i, i+1))
}

func (s *FileStore) writeRequestLog(device string, keys []string) error {
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('\n')
	}
	return writeFile(s.RequestLogPath(device), b.String())
}

// readLines splits a file on '\n' and '\r', dropping empty lines.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistence, path, err)
	}
	return strings.FieldsFunc(string(data), func(r rune) bool {
		return r == '\n' || r == '\r'
	}), nil
}

// writeFile writes to a temp file next to path and renames it into place.
func writeFile(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrPersistence, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", ErrPersistence, tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %v", ErrPersistence, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %v", ErrPersistence, path, err)
	}
	return nil
}
