package builder

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/tradegazette/gsearch/internal/docstore"
	"github.com/tradegazette/gsearch/internal/index"
)

func newTestDocstore(t *testing.T) *docstore.Store {
	t.Helper()
	records := []docstore.Record{
		{DateKey: 0, LocationCode: 1, TypeCode: 3, CompanyCode: 100},
		{DateKey: 0, LocationCode: 2, TypeCode: 3, CompanyCode: 200},
		{DateKey: 86400, LocationCode: 1, TypeCode: 4, CompanyCode: 100},
		{DateKey: 172800, LocationCode: 2, TypeCode: 4, CompanyCode: 300},
		{DateKey: 172800, LocationCode: 1, TypeCode: 3, CompanyCode: 100},
	}
	path := filepath.Join(t.TempDir(), "docmeta.bin")
	if err := docstore.Append(path, records); err != nil {
		t.Fatal(err)
	}
	s, err := docstore.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func readPostings(t *testing.T, path string) index.Postings {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var p index.Postings
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBuildShardsAndMonolithic(t *testing.T) {
	store := newTestDocstore(t)
	shards := t.TempDir()
	indexes := t.TempDir()
	b := New(store, shards, indexes, nil)

	stats, err := b.Build(context.Background(), Options{Field: index.IndexLocation, TwoLevel: true})
	if err != nil {
		t.Fatal(err)
	}
	if stats.RowsScanned != 5 {
		t.Errorf("RowsScanned = %d, want 5", stats.RowsScanned)
	}
	if stats.Keys != 2 || stats.ShardsWritten != 2 || stats.ShardsSkipped != 0 {
		t.Errorf("stats = %+v, want 2 keys written, none skipped", stats)
	}
	if !stats.MonoWritten {
		t.Error("monolithic file not written")
	}

	got := readPostings(t, index.ShardPath(shards, index.IndexLocation, 1, true))
	if !slices.Equal(got, index.Postings{0, 2, 4}) {
		t.Errorf("postings for key 1 = %v, want [0 2 4]", got)
	}
	got = readPostings(t, index.ShardPath(shards, index.IndexLocation, 2, true))
	if !slices.Equal(got, index.Postings{1, 3}) {
		t.Errorf("postings for key 2 = %v, want [1 3]", got)
	}

	// The artifacts the builder writes must resolve through the read path.
	s := index.NewStore(shards, indexes, 8)
	p, source, err := s.Lookup(index.IndexLocation, 1)
	if err != nil {
		t.Fatal(err)
	}
	if source != index.SourceShard || !slices.Equal(p, index.Postings{0, 2, 4}) {
		t.Errorf("Lookup = (%v, %q)", p, source)
	}
}

func TestBuildMonolithicMatchesShards(t *testing.T) {
	store := newTestDocstore(t)
	indexes := t.TempDir()
	b := New(store, t.TempDir(), indexes, nil)

	if _, err := b.Build(context.Background(), Options{Field: index.IndexType, MonoOnly: true}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(index.MonolithicPath(indexes, index.IndexType))
	if err != nil {
		t.Fatal(err)
	}
	var mono map[string]index.Postings
	if err := json.Unmarshal(data, &mono); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(mono["3"], index.Postings{0, 1, 4}) || !slices.Equal(mono["4"], index.Postings{2, 3}) {
		t.Errorf("monolithic = %v", mono)
	}
}

// A second run over the same output directory must rewrite nothing.
func TestBuildIsIdempotent(t *testing.T) {
	store := newTestDocstore(t)
	shards := t.TempDir()
	b := New(store, shards, t.TempDir(), nil)
	opts := Options{Field: index.IndexDate, TwoLevel: true, ShardsOnly: true}

	first, err := b.Build(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if first.ShardsWritten != 3 {
		t.Fatalf("first run wrote %d shards, want 3", first.ShardsWritten)
	}

	second, err := b.Build(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if second.ShardsWritten != 0 || second.ShardsSkipped != 3 {
		t.Errorf("second run stats = %+v, want all 3 skipped", second)
	}
}

// A partially built index resumes: pre-existing shards are left untouched.
func TestBuildResumesAfterPartialRun(t *testing.T) {
	store := newTestDocstore(t)
	shards := t.TempDir()
	b := New(store, shards, t.TempDir(), nil)

	// Simulate a prior interrupted run that completed only key 1, with
	// deliberately different contents so we can tell it was not rewritten.
	path := index.ShardPath(shards, index.IndexLocation, 1, true)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[42]"), 0o644); err != nil {
		t.Fatal(err)
	}

	stats, err := b.Build(context.Background(), Options{Field: index.IndexLocation, TwoLevel: true, ShardsOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if stats.ShardsSkipped != 1 || stats.ShardsWritten != 1 {
		t.Errorf("stats = %+v, want 1 skipped and 1 written", stats)
	}
	if got := readPostings(t, path); !slices.Equal(got, index.Postings{42}) {
		t.Errorf("pre-existing shard was rewritten: %v", got)
	}
}

func TestBuildSingleLevelLayout(t *testing.T) {
	store := newTestDocstore(t)
	shards := t.TempDir()
	b := New(store, shards, t.TempDir(), nil)

	if _, err := b.Build(context.Background(), Options{Field: index.IndexCompany, ShardsOnly: true}); err != nil {
		t.Fatal(err)
	}
	got := readPostings(t, index.ShardPath(shards, index.IndexCompany, 100, false))
	if !slices.Equal(got, index.Postings{0, 2, 4}) {
		t.Errorf("postings for company 100 = %v, want [0 2 4]", got)
	}
}

func TestBuildSample(t *testing.T) {
	store := newTestDocstore(t)
	b := New(store, t.TempDir(), t.TempDir(), nil)

	stats, err := b.Build(context.Background(), Options{Field: index.IndexLocation, ShardsOnly: true, Sample: 2})
	if err != nil {
		t.Fatal(err)
	}
	if stats.RowsScanned != 2 {
		t.Errorf("RowsScanned = %d, want 2", stats.RowsScanned)
	}
}

func TestBuildUnknownField(t *testing.T) {
	store := newTestDocstore(t)
	b := New(store, t.TempDir(), t.TempDir(), nil)
	if _, err := b.Build(context.Background(), Options{Field: "ad_id"}); err == nil {
		t.Fatal("expected error for unindexable field")
	}
}

func TestBuildCancelled(t *testing.T) {
	store := newTestDocstore(t)
	b := New(store, t.TempDir(), t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Build(ctx, Options{Field: index.IndexLocation}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestWriteJSONAtomicLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "5.json")
	if err := writeJSONAtomic(path, index.Postings{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "5.json" {
		t.Errorf("directory contents = %v, want only 5.json", entries)
	}
}
