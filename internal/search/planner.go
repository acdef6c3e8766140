// Package search implements the query planner: it composes postings lists
// from the index store, decides how to apply a date range, intersects
// candidates smallest-first, and streams matching rows out of the row store.
package search

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/tradegazette/gsearch/internal/dates"
	"github.com/tradegazette/gsearch/internal/docstore"
	"github.com/tradegazette/gsearch/internal/index"
	"github.com/tradegazette/gsearch/pkg/config"
	gserrors "github.com/tradegazette/gsearch/pkg/errors"
	"github.com/tradegazette/gsearch/pkg/metrics"
)

// Filters is a fully resolved query: integer codes and ISO dates. Text
// resolution (names, date phrases) happens before this layer.
type Filters struct {
	CityCode    *int64
	TypeCode    *int64
	CompanyCode *int64
	DateFrom    string // "YYYY-MM-DD"; both ends required to activate
	DateTo      string
	Limit       int // 0 means the configured default
}

// Hit is one matching row: the raw record plus its row id. Display labels
// are attached by the transport layer, not here.
type Hit struct {
	ID     int32
	Record docstore.Record
}

// Result is an ordered, capped hit list. Count is the number of hits
// returned; no total beyond the scanned prefix is computed.
type Result struct {
	Hits  []Hit
	Count int
}

// Planner executes searches over a row store and an index store.
type Planner struct {
	docs    *docstore.Provider
	idx     *index.Store
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPlanner creates a Planner. metrics may be nil in tests.
func NewPlanner(docs *docstore.Provider, idx *index.Store, cfg config.SearchConfig, m *metrics.Metrics) *Planner {
	return &Planner{
		docs:    docs,
		idx:     idx,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "planner"),
	}
}

type candidate struct {
	name string
	list index.Postings
}

// Search runs the full query plan:
//
//  1. gather postings for the city and type filters,
//  2. expand a date range into per-day postings and union them only when the
//     estimated union stays within the selectivity budget, otherwise defer
//     to a per-row date filter,
//  3. intersect candidates smallest-first with early exit,
//  4. hydrate matches in ascending row-id order, applying the deferred date
//     filter and the company filter, until the limit is reached.
func (p *Planner) Search(ctx context.Context, f Filters) (*Result, error) {
	store, err := p.docs.Store()
	if err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit == 0 {
		limit = p.cfg.DefaultLimit
	}
	limit = p.ClampLimit(limit)

	var cands []candidate

	var cityList, typeList index.Postings
	if f.CityCode != nil {
		if cityList, err = p.lookup(index.IndexLocation, *f.CityCode); err != nil {
			return nil, err
		}
		cands = append(cands, candidate{"city", cityList})
	}
	if f.TypeCode != nil {
		if typeList, err = p.lookup(index.IndexType, *f.TypeCode); err != nil {
			return nil, err
		}
		cands = append(cands, candidate{"type", typeList})
	}

	haveDate := f.DateFrom != "" && f.DateTo != ""
	dateMaterialized := false
	if haveDate {
		dayKeys, err := dates.DayKeysForRange(f.DateFrom, f.DateTo)
		if err != nil {
			return nil, err
		}
		dayLists := make([]index.Postings, len(dayKeys))
		est := 0
		for i, k := range dayKeys {
			if dayLists[i], err = p.lookup(index.IndexDate, k); err != nil {
				return nil, err
			}
			est += len(dayLists[i])
		}

		// The union is worth materializing only if it is not much larger
		// than the smallest list we would intersect it with. Without other
		// filters a pure date query is never penalized.
		minBase := est
		if f.CityCode != nil {
			minBase = len(cityList)
		}
		if f.TypeCode != nil && (f.CityCode == nil || len(typeList) < minBase) {
			minBase = len(typeList)
		}
		if est <= minBase*p.selectivityFactor() {
			cands = append(cands, candidate{"date", index.UnionMany(dayLists)})
			dateMaterialized = true
		}
		p.countDateDecision(dateMaterialized)
	}

	if len(cands) == 0 {
		return nil, gserrors.New(gserrors.ErrMissingFilter, http.StatusBadRequest,
			"provide at least one of: city_code, type_code, or a valid date range")
	}

	sort.Slice(cands, func(i, j int) bool { return len(cands[i].list) < len(cands[j].list) })
	cur := cands[0].list
	for _, c := range cands[1:] {
		if len(cur) == 0 || len(c.list) == 0 {
			cur = index.Postings{}
			break
		}
		if cur = index.Intersect(cur, c.list); len(cur) == 0 {
			break
		}
	}

	needDatePost := haveDate && !dateMaterialized
	var diFrom, diTo int64
	if needDatePost {
		if diFrom, err = dates.FromISO(f.DateFrom); err != nil {
			return nil, err
		}
		if diTo, err = dates.FromISO(f.DateTo); err != nil {
			return nil, err
		}
		if diFrom > diTo {
			diFrom, diTo = diTo, diFrom
		}
	}

	hits := make([]Hit, 0, limit)
	for _, rid := range cur {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := store.Get(int(rid))
		if err != nil {
			// The index pointed at a row the store does not have. The two
			// artifacts are out of sync, which is a data-consistency fault on
			// our side, not a client error.
			return nil, gserrors.Newf(gserrors.ErrInternal, http.StatusInternalServerError,
				"index references row %d beyond the row store", rid)
		}
		p.countHydrated()
		if needDatePost && (int64(rec.DateKey) < diFrom || int64(rec.DateKey) > diTo) {
			continue
		}
		if f.CompanyCode != nil && int64(rec.CompanyCode) != *f.CompanyCode {
			continue
		}
		hits = append(hits, Hit{ID: rid, Record: rec})
		if len(hits) >= limit {
			break
		}
	}

	p.logger.Debug("search executed",
		"candidates", len(cands),
		"intersection", len(cur),
		"hits", len(hits),
		"date_materialized", dateMaterialized,
	)
	return &Result{Hits: hits, Count: len(hits)}, nil
}

// Row hydrates a single row id.
func (p *Planner) Row(rid int) (docstore.Record, error) {
	store, err := p.docs.Store()
	if err != nil {
		return docstore.Record{}, err
	}
	return store.Get(rid)
}

// Postings exposes raw postings resolution to the transport layer.
func (p *Planner) Postings(name string, key int64) (index.Postings, error) {
	return p.lookup(name, key)
}

// RowCount reports the row-store size (0 while not ready).
func (p *Planner) RowCount() int {
	return p.docs.RowCount()
}

// ClampLimit clamps an explicit limit into the configured [min, max] range.
// A zero limit means "not given" and is resolved to the default before
// clamping happens in Search; callers passing an explicit 0 get the minimum.
func (p *Planner) ClampLimit(limit int) int {
	if limit < p.cfg.MinLimit {
		limit = p.cfg.MinLimit
	}
	if limit > p.cfg.MaxLimit {
		limit = p.cfg.MaxLimit
	}
	return limit
}

func (p *Planner) selectivityFactor() int {
	if p.cfg.SelectivityFactor > 0 {
		return p.cfg.SelectivityFactor
	}
	return 4
}

func (p *Planner) lookup(name string, key int64) (index.Postings, error) {
	list, source, err := p.idx.Lookup(name, key)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.PostingsLookupsTotal.WithLabelValues(name, string(source)).Inc()
	}
	return list, nil
}

func (p *Planner) countDateDecision(materialized bool) {
	if p.metrics == nil {
		return
	}
	decision := "post_filter"
	if materialized {
		decision = "materialized"
	}
	p.metrics.DateUnionDecisions.WithLabelValues(decision).Inc()
}

func (p *Planner) countHydrated() {
	if p.metrics != nil {
		p.metrics.RowsHydratedTotal.Inc()
	}
}
