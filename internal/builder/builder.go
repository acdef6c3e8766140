// Package builder produces inverted indexes from the row store: one scan
// buckets row ids by a chosen field, then each bucket is written as a
// per-key shard file and/or folded into a monolithic index file. Writes are
// atomic and existing shards are skipped, so an interrupted build resumes by
// simply running again.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/tradegazette/gsearch/internal/docstore"
	"github.com/tradegazette/gsearch/internal/index"
	"github.com/tradegazette/gsearch/pkg/metrics"
)

// Options selects the bucketing field and the output layout.
type Options struct {
	// Field is the record field to bucket by; it doubles as the index name
	// on disk (loc_id, type_id, date_int, comp_code).
	Field string
	// TwoLevel fans shard files out into 256 subdirectories by the low byte
	// of the key.
	TwoLevel bool
	// ShardsOnly skips the monolithic file; MonoOnly skips shards.
	ShardsOnly bool
	MonoOnly   bool
	// Sample limits the scan to the first N rows (dry runs); 0 means all.
	Sample int
	// Progress intervals in rows / files; 0 disables that log line.
	ProgressRows  int
	ProgressFiles int
}

// Stats summarizes one build run.
type Stats struct {
	RowsScanned   int
	Keys          int
	ShardsWritten int
	ShardsSkipped int
	MonoWritten   bool
}

// Builder scans a row store and writes index files.
type Builder struct {
	store      *docstore.Store
	shardsRoot string
	indexRoot  string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Builder. metrics may be nil.
func New(store *docstore.Store, shardsRoot, indexRoot string, m *metrics.Metrics) *Builder {
	return &Builder{
		store:      store,
		shardsRoot: shardsRoot,
		indexRoot:  indexRoot,
		metrics:    m,
		logger:     slog.Default().With("component", "builder"),
	}
}

// Build runs the scan and writes the requested outputs. Cancellation leaves
// only fully written keys behind; a later run picks up the rest.
func (b *Builder) Build(ctx context.Context, opts Options) (*Stats, error) {
	extract, err := fieldExtractor(opts.Field)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	buckets, err := b.scan(ctx, opts, extract, stats)
	if err != nil {
		return nil, err
	}
	stats.Keys = len(buckets)

	// Ascending row-id scan order means each bucket is already sorted; the
	// sort before writing is defensive only.
	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		slices.Sort(buckets[k])
	}

	if !opts.MonoOnly {
		if err := b.writeShards(ctx, opts, keys, buckets, stats); err != nil {
			return stats, err
		}
	}
	if !opts.ShardsOnly {
		if err := b.writeMonolithic(ctx, opts, buckets); err != nil {
			return stats, err
		}
		stats.MonoWritten = true
	}

	b.logger.Info("index build complete",
		"field", opts.Field,
		"rows", stats.RowsScanned,
		"keys", stats.Keys,
		"shards_written", stats.ShardsWritten,
		"shards_skipped", stats.ShardsSkipped,
		"monolithic", stats.MonoWritten,
	)
	return stats, nil
}

// scan walks every row once and buckets row ids by the extracted field.
func (b *Builder) scan(ctx context.Context, opts Options, extract func(docstore.Record) int64, stats *Stats) (map[int64]index.Postings, error) {
	total := b.store.RowCount()
	limit := total
	if opts.Sample > 0 && opts.Sample < total {
		limit = opts.Sample
	}

	start := time.Now()
	buckets := make(map[int64]index.Postings)
	for rid := 0; rid < limit; rid++ {
		if rid%65536 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := b.store.Get(rid)
		if err != nil {
			return nil, err
		}
		key := extract(rec)
		buckets[key] = append(buckets[key], int32(rid))
		if b.metrics != nil {
			b.metrics.BuilderRowsScanned.Inc()
		}
		if opts.ProgressRows > 0 && (rid+1)%opts.ProgressRows == 0 {
			elapsed := time.Since(start).Seconds()
			b.logger.Info("scan progress",
				"rows", rid+1,
				"total", limit,
				"rows_per_sec", int(float64(rid+1)/elapsed),
			)
		}
	}
	stats.RowsScanned = limit
	b.logger.Info("scan complete",
		"rows", limit,
		"keys", len(buckets),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return buckets, nil
}

// writeShards writes one file per key, skipping keys whose file already
// exists so interrupted runs resume for free.
func (b *Builder) writeShards(ctx context.Context, opts Options, keys []int64, buckets map[int64]index.Postings, stats *Stats) error {
	indexDir := filepath.Join(b.shardsRoot, opts.Field)
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return fmt.Errorf("creating shard directory: %w", err)
	}
	if opts.TwoLevel {
		// Pre-create the 00..ff fan-out once instead of racing MkdirAll per
		// key.
		for i := 0; i < 256; i++ {
			if err := os.MkdirAll(filepath.Join(indexDir, fmt.Sprintf("%02x", i)), 0o755); err != nil {
				return fmt.Errorf("creating fan-out directory: %w", err)
			}
		}
	}

	start := time.Now()
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := index.ShardPath(b.shardsRoot, opts.Field, key, opts.TwoLevel)
		if _, err := os.Stat(path); err == nil {
			stats.ShardsSkipped++
			if b.metrics != nil {
				b.metrics.BuilderShardsSkipped.Inc()
			}
			continue
		}
		if err := writeJSONAtomic(path, buckets[key]); err != nil {
			return err
		}
		stats.ShardsWritten++
		if b.metrics != nil {
			b.metrics.BuilderShardsWritten.Inc()
		}
		if opts.ProgressFiles > 0 && (i+1)%opts.ProgressFiles == 0 {
			b.logger.Info("shard progress",
				"keys", i+1,
				"total", len(keys),
				"written", stats.ShardsWritten,
				"skipped", stats.ShardsSkipped,
			)
		}
	}
	b.logger.Info("shards written",
		"written", stats.ShardsWritten,
		"skipped", stats.ShardsSkipped,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}

// writeMonolithic writes the whole key->postings map as one file, through
// the same atomic pattern as shards.
func (b *Builder) writeMonolithic(ctx context.Context, opts Options, buckets map[int64]index.Postings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(b.indexRoot, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	mono := make(map[string]index.Postings, len(buckets))
	for k, v := range buckets {
		mono[strconv.FormatInt(k, 10)] = v
	}
	return writeJSONAtomic(index.MonolithicPath(b.indexRoot, opts.Field), mono)
}

// fieldExtractor maps an index name to its record field.
func fieldExtractor(field string) (func(docstore.Record) int64, error) {
	switch field {
	case index.IndexDate:
		return func(r docstore.Record) int64 { return int64(r.DateKey) }, nil
	case index.IndexLocation:
		return func(r docstore.Record) int64 { return int64(r.LocationCode) }, nil
	case index.IndexType:
		return func(r docstore.Record) int64 { return int64(r.TypeCode) }, nil
	case index.IndexCompany:
		return func(r docstore.Record) int64 { return int64(r.CompanyCode) }, nil
	default:
		valid := []string{index.IndexDate, index.IndexLocation, index.IndexType, index.IndexCompany}
		sort.Strings(valid)
		return nil, fmt.Errorf("unknown index field %q (valid: %v)", field, valid)
	}
}
