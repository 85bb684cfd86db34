// Package convdb persists per-device direct-convolution tiling configs and
// the log of shapes that were requested but never searched.
//
// Every mutation reads the whole file, changes it in memory and rewrites it.
// There is no cross-process atomicity: two writers targeting the same device
// race and the last one to rename its file wins. Callers that need more must
// serialize externally (see internal/dblock).
package convdb

import "errors"

// ErrPersistence wraps every I/O failure on a database or request log file.
// A missing file is not a failure.
var ErrPersistence = errors.New("config persistence failure")

const (
	dbSuffix      = ".cd.pdb.txt"
	requestSuffix = ".cd.rdb.txt"
)

// Store is the device-scoped config database plus request log.
type Store interface {
	ReadDatabase(device string) (map[string]string, error)
	WriteDatabase(device string, db map[string]string) error
	Lookup(device, key string) (string, bool, error)
	Upsert(device, key, value string) error

	ReadRequestLog(device string) ([]string, error)
	AppendIfAbsent(device, key string) error
	RemoveIfPresent(device, key string) error
}
