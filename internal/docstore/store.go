// Package docstore opens and reads the binary row store (docmeta.bin): a
// headerless flat file of fixed 24-byte records, memory-mapped read-only for
// O(1) hydration of any row id.
package docstore

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	gserrors "github.com/tradegazette/gsearch/pkg/errors"
)

// RecordSize is the fixed width of one record: six little-endian int32s.
const RecordSize = 24

// Record is one row of the store. Field order matches the on-disk layout and
// must never change.
type Record struct {
	DateKey      int32 // seconds since 1960-01-01 UTC, day-aligned
	LocationCode int32
	TypeCode     int32
	CompanyCode  int32
	AdID         int32
	AdLinkCode   int32
}

// Store is a read-only memory-mapped row store. Safe for unsynchronized
// concurrent reads; nothing mutates it after Open.
type Store struct {
	path string
	file *os.File
	data []byte
	rows int
}

// Open maps the row store at path. A missing file or a size that is not a
// multiple of RecordSize is a configuration error.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening row store: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening row store: %w", err)
	}
	size := st.Size()
	if size%RecordSize != 0 {
		f.Close()
		return nil, fmt.Errorf("row store %s: size %d is not a multiple of record size %d", path, size, RecordSize)
	}

	s := &Store{
		path: path,
		file: f,
		rows: int(size / RecordSize),
	}
	if size > 0 {
		data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mapping row store %s: %w", path, err)
		}
		s.data = data
	}
	return s, nil
}

// RowCount returns the number of records in the store.
func (s *Store) RowCount() int {
	return s.rows
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Get returns the record at the given row id. Reads past the mapped extent
// fail with ErrRowOutOfRange; they are never clamped.
func (s *Store) Get(rid int) (Record, error) {
	if rid < 0 || rid >= s.rows {
		return Record{}, fmt.Errorf("row %d of %d: %w", rid, s.rows, gserrors.ErrRowOutOfRange)
	}
	off := rid * RecordSize
	b := s.data[off : off+RecordSize]
	return Record{
		DateKey:      int32(binary.LittleEndian.Uint32(b[0:4])),
		LocationCode: int32(binary.LittleEndian.Uint32(b[4:8])),
		TypeCode:     int32(binary.LittleEndian.Uint32(b[8:12])),
		CompanyCode:  int32(binary.LittleEndian.Uint32(b[12:16])),
		AdID:         int32(binary.LittleEndian.Uint32(b[16:20])),
		AdLinkCode:   int32(binary.LittleEndian.Uint32(b[20:24])),
	}, nil
}

// Close releases the mapping and the underlying file.
func (s *Store) Close() error {
	var mmapErr error
	if s.data != nil {
		mmapErr = unix.Munmap(s.data)
		s.data = nil
	}
	if err := s.file.Close(); err != nil {
		return err
	}
	return mmapErr
}

// Append writes records to the end of a row store file, creating it if
// needed. Used by ingestion tooling and tests; the serving process never
// writes.
func Append(path string, records []Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := make([]byte, RecordSize)
	for _, r := range records {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(r.DateKey))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(r.LocationCode))
		binary.LittleEndian.PutUint32(buf[8:12], uint32(r.TypeCode))
		binary.LittleEndian.PutUint32(buf[12:16], uint32(r.CompanyCode))
		binary.LittleEndian.PutUint32(buf[16:20], uint32(r.AdID))
		binary.LittleEndian.PutUint32(buf[20:24], uint32(r.AdLinkCode))
		if _, err := f.Write(buf); err != nil {
			return err
		}
	}
	return f.Sync()
}
