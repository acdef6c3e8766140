// Command buildindex scans the binary row store and writes inverted index
// files for one field: per-key shard files, a monolithic file, or both.
// Interrupt it freely; a re-run skips the shards that already exist.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tradegazette/gsearch/internal/builder"
	"github.com/tradegazette/gsearch/internal/docstore"
	"github.com/tradegazette/gsearch/internal/index"
	"github.com/tradegazette/gsearch/pkg/config"
	"github.com/tradegazette/gsearch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	field := flag.String("field", index.IndexCompany, "record field to index (loc_id, type_id, date_int, comp_code)")
	singleLevel := flag.Bool("single-level", false, "write shards flat instead of the 256-way fan-out")
	shardsOnly := flag.Bool("shards-only", false, "skip the monolithic index file")
	monoOnly := flag.Bool("mono-only", false, "skip shard files")
	sample := flag.Int("sample", 0, "scan only the first N rows (dry run); 0 means all")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("buildindex")

	if *shardsOnly && *monoOnly {
		log.Error("-shards-only and -mono-only are mutually exclusive")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := docstore.Open(cfg.Paths.DocmetaBin)
	if err != nil {
		log.Error("opening row store", "path", cfg.Paths.DocmetaBin, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	b := builder.New(store, cfg.Paths.ShardsRoot, cfg.Paths.IndexRoot, nil)
	stats, err := b.Build(ctx, builder.Options{
		Field:         *field,
		TwoLevel:      cfg.Builder.TwoLevel && !*singleLevel,
		ShardsOnly:    *shardsOnly,
		MonoOnly:      *monoOnly,
		Sample:        *sample,
		ProgressRows:  cfg.Builder.ProgressRows,
		ProgressFiles: cfg.Builder.ProgressFiles,
	})
	if stats == nil {
		stats = &builder.Stats{}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("build interrupted; rerun to resume",
				"shards_written", stats.ShardsWritten,
				"shards_skipped", stats.ShardsSkipped,
			)
			os.Exit(130)
		}
		log.Error("build failed", "error", err)
		os.Exit(1)
	}

	log.Info("done",
		"field", *field,
		"rows", stats.RowsScanned,
		"keys", stats.Keys,
		"shards_written", stats.ShardsWritten,
		"shards_skipped", stats.ShardsSkipped,
		"monolithic", stats.MonoWritten,
	)
}
