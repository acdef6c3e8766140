package docstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	gserrors "github.com/tradegazette/gsearch/pkg/errors"
)

func testRecords() []Record {
	return []Record{
		{DateKey: 1894838400, LocationCode: 34, TypeCode: 3, CompanyCode: 100, AdID: 9001, AdLinkCode: 1},
		{DateKey: 1894924800, LocationCode: 6, TypeCode: 1, CompanyCode: 200, AdID: 9002, AdLinkCode: 0},
		{DateKey: 1895011200, LocationCode: 34, TypeCode: 3, CompanyCode: 100, AdID: 9003, AdLinkCode: 2},
	}
}

func newTestStore(t *testing.T, records []Record) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docmeta.bin")
	if err := Append(path, records); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoundTrip(t *testing.T) {
	want := testRecords()
	s := newTestStore(t, want)

	if s.RowCount() != len(want) {
		t.Fatalf("RowCount = %d, want %d", s.RowCount(), len(want))
	}
	for i, w := range want {
		got, err := s.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if got != w {
			t.Errorf("Get(%d) = %+v, want %+v", i, got, w)
		}
	}
}

func TestGetOutOfRange(t *testing.T) {
	s := newTestStore(t, testRecords())
	for _, rid := range []int{-1, 3, 1000} {
		if _, err := s.Get(rid); !errors.Is(err, gserrors.ErrRowOutOfRange) {
			t.Errorf("Get(%d) error = %v, want ErrRowOutOfRange", rid, err)
		}
	}
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docmeta.bin")
	if err := os.WriteFile(path, make([]byte, RecordSize+7), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for size not a multiple of RecordSize")
	}
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docmeta.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.RowCount() != 0 {
		t.Errorf("RowCount = %d, want 0", s.RowCount())
	}
	if _, err := s.Get(0); !errors.Is(err, gserrors.ErrRowOutOfRange) {
		t.Errorf("Get(0) error = %v, want ErrRowOutOfRange", err)
	}
}

func TestNegativeFieldRoundTrip(t *testing.T) {
	// Dates before 1960 encode as negative keys.
	rec := Record{DateKey: -86400, LocationCode: 1}
	s := newTestStore(t, []Record{rec})
	got, err := s.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if got != rec {
		t.Errorf("Get(0) = %+v, want %+v", got, rec)
	}
}

func TestProviderNotReadyThenReady(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docmeta.bin")
	p := NewProvider(path)

	if _, err := p.Store(); !errors.Is(err, gserrors.ErrNotReady) {
		t.Fatalf("Store() before file exists: error = %v, want ErrNotReady", err)
	}
	if p.RowCount() != 0 {
		t.Errorf("RowCount before ready = %d, want 0", p.RowCount())
	}

	if err := Append(path, testRecords()); err != nil {
		t.Fatal(err)
	}
	s, err := p.Store()
	if err != nil {
		t.Fatalf("Store() after file exists: %v", err)
	}
	if s.RowCount() != 3 {
		t.Errorf("RowCount = %d, want 3", s.RowCount())
	}
	if p.RowCount() != 3 {
		t.Errorf("provider RowCount = %d, want 3", p.RowCount())
	}
	p.Close()
}

func TestProviderClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docmeta.bin")
	if err := Append(path, testRecords()); err != nil {
		t.Fatal(err)
	}
	p := NewProvider(path)
	if _, err := p.Store(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Store(); !errors.Is(err, gserrors.ErrClosed) {
		t.Errorf("Store() after Close: error = %v, want ErrClosed", err)
	}
	// Close is idempotent.
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
