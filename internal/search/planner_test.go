package search

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tradegazette/gsearch/internal/docstore"
	"github.com/tradegazette/gsearch/internal/index"
	"github.com/tradegazette/gsearch/pkg/config"
	gserrors "github.com/tradegazette/gsearch/pkg/errors"
)

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultLimit:      40,
		MinLimit:          1,
		MaxLimit:          200,
		SelectivityFactor: 4,
		MonoCacheSize:     8,
	}
}

const (
	day0 = 0      // 1960-01-01
	day1 = 86400  // 1960-01-02
	day2 = 172800 // 1960-01-03
)

// newTestPlanner builds a five-row store with shard indexes for loc_id,
// type_id, and date_int. comp_code is deliberately unindexed so the company
// filter exercises the post-filter path.
func newTestPlanner(t *testing.T, cfg config.SearchConfig) *Planner {
	t.Helper()

	records := []docstore.Record{
		{DateKey: day0, LocationCode: 1, TypeCode: 3, CompanyCode: 100, AdID: 1},
		{DateKey: day0, LocationCode: 2, TypeCode: 3, CompanyCode: 200, AdID: 2},
		{DateKey: day1, LocationCode: 1, TypeCode: 4, CompanyCode: 100, AdID: 3},
		{DateKey: day2, LocationCode: 2, TypeCode: 4, CompanyCode: 300, AdID: 4},
		{DateKey: day2, LocationCode: 1, TypeCode: 3, CompanyCode: 100, AdID: 5},
	}
	binPath := filepath.Join(t.TempDir(), "docmeta.bin")
	if err := docstore.Append(binPath, records); err != nil {
		t.Fatal(err)
	}

	shards := t.TempDir()
	writeShard := func(name string, key int64, p index.Postings) {
		path := index.ShardPath(shards, name, key, true)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		data, err := json.Marshal(p)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeShard(index.IndexLocation, 1, index.Postings{0, 2, 4})
	writeShard(index.IndexLocation, 2, index.Postings{1, 3})
	writeShard(index.IndexType, 3, index.Postings{0, 1, 4})
	writeShard(index.IndexType, 4, index.Postings{2, 3})
	writeShard(index.IndexDate, day0, index.Postings{0, 1})
	writeShard(index.IndexDate, day1, index.Postings{2})
	writeShard(index.IndexDate, day2, index.Postings{3, 4})

	docs := docstore.NewProvider(binPath)
	t.Cleanup(func() { docs.Close() })
	idx := index.NewStore(shards, t.TempDir(), cfg.MonoCacheSize)
	return NewPlanner(docs, idx, cfg, nil)
}

func hitIDs(res *Result) []int32 {
	ids := make([]int32, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids
}

func int64p(v int64) *int64 { return &v }

func TestSearchByCity(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	res, err := p.Search(context.Background(), Filters{CityCode: int64p(1)})
	if err != nil {
		t.Fatal(err)
	}
	want := []int32{0, 2, 4}
	got := hitIDs(res)
	if len(got) != len(want) {
		t.Fatalf("hits = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("hits = %v, want %v", got, want)
		}
	}
	if res.Count != 3 {
		t.Errorf("Count = %d, want 3", res.Count)
	}
}

func TestSearchCityAndType(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	res, err := p.Search(context.Background(), Filters{CityCode: int64p(1), TypeCode: int64p(3)})
	if err != nil {
		t.Fatal(err)
	}
	got := hitIDs(res)
	if len(got) != 2 || got[0] != 0 || got[1] != 4 {
		t.Errorf("hits = %v, want [0 4]", got)
	}
}

// A narrow date range next to a city filter stays under the selectivity
// budget, so the planner materializes the day-key union.
func TestSearchMaterializedDateRange(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	res, err := p.Search(context.Background(), Filters{
		CityCode: int64p(1),
		DateFrom: "1960-01-01",
		DateTo:   "1960-01-02",
	})
	if err != nil {
		t.Fatal(err)
	}
	got := hitIDs(res)
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("hits = %v, want [0 2]", got)
	}
}

// With the selectivity factor forced to 1 the same query exceeds the budget
// and falls back to the per-row date post-filter; results must not change.
func TestSearchPostFilteredDateRange(t *testing.T) {
	cfg := testSearchConfig()
	cfg.SelectivityFactor = 1
	p := newTestPlanner(t, cfg)
	res, err := p.Search(context.Background(), Filters{
		CityCode: int64p(2),
		DateFrom: "1960-01-01",
		DateTo:   "1960-01-02",
	})
	if err != nil {
		t.Fatal(err)
	}
	got := hitIDs(res)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("hits = %v, want [1]", got)
	}
}

func TestSearchDateOnly(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	res, err := p.Search(context.Background(), Filters{
		DateFrom: "1960-01-03",
		DateTo:   "1960-01-03",
	})
	if err != nil {
		t.Fatal(err)
	}
	got := hitIDs(res)
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("hits = %v, want [3 4]", got)
	}
}

func TestSearchReversedDateBounds(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	res, err := p.Search(context.Background(), Filters{
		CityCode: int64p(1),
		DateFrom: "1960-01-02",
		DateTo:   "1960-01-01",
	})
	if err != nil {
		t.Fatal(err)
	}
	got := hitIDs(res)
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("hits = %v, want [0 2]", got)
	}
}

func TestSearchCompanyPostFilter(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	res, err := p.Search(context.Background(), Filters{CityCode: int64p(2), CompanyCode: int64p(300)})
	if err != nil {
		t.Fatal(err)
	}
	got := hitIDs(res)
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("hits = %v, want [3]", got)
	}
}

func TestSearchCompanyAloneIsMissingFilter(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	_, err := p.Search(context.Background(), Filters{CompanyCode: int64p(100)})
	if !errors.Is(err, gserrors.ErrMissingFilter) {
		t.Errorf("error = %v, want ErrMissingFilter", err)
	}
}

func TestSearchNoFiltersIsMissingFilter(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	_, err := p.Search(context.Background(), Filters{})
	if !errors.Is(err, gserrors.ErrMissingFilter) {
		t.Errorf("error = %v, want ErrMissingFilter", err)
	}
}

func TestSearchInvalidDate(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	_, err := p.Search(context.Background(), Filters{DateFrom: "bogus", DateTo: "1960-01-02"})
	if !errors.Is(err, gserrors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestSearchUnknownKeyIsEmptyResult(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	res, err := p.Search(context.Background(), Filters{CityCode: int64p(99)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 0 {
		t.Errorf("Count = %d, want 0", res.Count)
	}
}

func TestSearchLimitTruncates(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	res, err := p.Search(context.Background(), Filters{CityCode: int64p(1), Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	got := hitIDs(res)
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("hits = %v, want the first two ids [0 2]", got)
	}
}

func TestSearchNotReady(t *testing.T) {
	docs := docstore.NewProvider(filepath.Join(t.TempDir(), "missing.bin"))
	idx := index.NewStore(t.TempDir(), t.TempDir(), 8)
	p := NewPlanner(docs, idx, testSearchConfig(), nil)
	_, err := p.Search(context.Background(), Filters{CityCode: int64p(1)})
	if !errors.Is(err, gserrors.ErrNotReady) {
		t.Errorf("error = %v, want ErrNotReady", err)
	}
}

// An index entry pointing past the row store is a data-consistency fault on
// the serving side and must surface as an internal error, not a client one.
func TestSearchIndexRowStoreDesync(t *testing.T) {
	records := []docstore.Record{
		{DateKey: day0, LocationCode: 1, TypeCode: 3, CompanyCode: 100, AdID: 1},
	}
	binPath := filepath.Join(t.TempDir(), "docmeta.bin")
	if err := docstore.Append(binPath, records); err != nil {
		t.Fatal(err)
	}

	shards := t.TempDir()
	path := index.ShardPath(shards, index.IndexLocation, 1, true)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	// Shard claims a row the one-record store does not have.
	if err := os.WriteFile(path, []byte("[0,7]"), 0o644); err != nil {
		t.Fatal(err)
	}

	docs := docstore.NewProvider(binPath)
	t.Cleanup(func() { docs.Close() })
	p := NewPlanner(docs, index.NewStore(shards, t.TempDir(), 8), testSearchConfig(), nil)

	_, err := p.Search(context.Background(), Filters{CityCode: int64p(1)})
	if !errors.Is(err, gserrors.ErrInternal) {
		t.Fatalf("error = %v, want ErrInternal", err)
	}
	if got := gserrors.HTTPStatusCode(err); got != 500 {
		t.Errorf("HTTPStatusCode = %d, want 500", got)
	}
}

func TestClampLimit(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	tests := []struct {
		in, want int
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{40, 40},
		{200, 200},
		{10000, 200},
	}
	for _, tt := range tests {
		if got := p.ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRow(t *testing.T) {
	p := newTestPlanner(t, testSearchConfig())
	rec, err := p.Row(3)
	if err != nil {
		t.Fatal(err)
	}
	if rec.AdID != 4 || rec.LocationCode != 2 {
		t.Errorf("Row(3) = %+v", rec)
	}
	if _, err := p.Row(99); !errors.Is(err, gserrors.ErrRowOutOfRange) {
		t.Errorf("Row(99) error = %v, want ErrRowOutOfRange", err)
	}
}
