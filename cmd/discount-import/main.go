package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/ahunnii/atomic-trade-backend-sub001/internal/domain/discount"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/seed"
	"github.com/ahunnii/atomic-trade-backend-sub001/internal/storage/postgres"
)

const (
	bloomFPR         = 0.001
	minBloomCapacity = 10_000
	progressEvery    = 10
)

func main() {
	var (
		databaseURL string
		storeID     string
		batchSize   int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&storeID, "store-id", "", "store that owns the imported discounts")
	flag.IntVar(&batchSize, "batch-size", 500, "discounts per write batch")
	flag.Usage = func() {
		_, _ = io.WriteString(flag.CommandLine.Output(),
			"usage: discount-import --store-id ID [flags] FILE.jsonl[.gz]...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if storeID == "" {
		slog.Error("store id is required: set --store-id")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, storeID, batchSize, flag.Args()); err != nil {
		slog.Error("discount import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("discount import completed successfully")
}

func run(ctx context.Context, databaseURL, storeID string, batchSize int, files []string) error {
	slog.Info("parsing discount files", slog.Int("files", len(files)))

	parsed, err := parseFiles(ctx, files, time.Now())
	if err != nil {
		return errors.Wrap(err, "parse files")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, 4)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	seeder := postgres.NewSeeder(pool)

	existing, err := seeder.DiscountCodes(ctx, storeID)
	if err != nil {
		return errors.Wrap(err, "load existing codes")
	}

	total := 0
	for _, ds := range parsed {
		total += len(ds)
	}
	idx := newCodeIndex(existing, total)

	fresh, skipped := idx.dedupe(parsed)
	slog.Info("deduplicated discounts",
		slog.Int("existing_codes", len(existing)),
		slog.Int("parsed", total),
		slog.Int("new", len(fresh)),
		slog.Int("skipped", skipped),
	)

	return writeDiscounts(ctx, seeder, storeID, fresh, batchSize)
}

// parseFiles decodes every file concurrently. Results keep the order of
// files so duplicate resolution is deterministic.
func parseFiles(ctx context.Context, files []string, now time.Time) ([][]discount.Discount, error) {
	results := make([][]discount.Discount, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			ds, err := parseFile(ctx, f, now)
			if err != nil {
				return errors.Wrapf(err, "file %s", f)
			}
			slog.Info("parsed file", slog.String("path", f), slog.Int("discounts", len(ds)))
			results[i] = ds
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func parseFile(ctx context.Context, path string, now time.Time) ([]discount.Discount, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	return decodeDiscounts(ctx, r, now)
}

func decodeDiscounts(ctx context.Context, r io.Reader, now time.Time) ([]discount.Discount, error) {
	var out []discount.Discount
	err := seed.DecodeDiscounts(r, func(line int, d seed.Discount) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		dd, err := d.Domain(now)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		out = append(out, dd)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// codeIndex tracks the discount codes already taken in a store. The bloom
// filter answers most lookups; positives are confirmed against the exact set.
type codeIndex struct {
	filter *bloom.BloomFilter
	codes  map[string]struct{}
}

func newCodeIndex(existing []string, incoming int) *codeIndex {
	capacity := uint(max(len(existing)+incoming, minBloomCapacity))
	idx := &codeIndex{
		filter: bloom.NewWithEstimates(capacity, bloomFPR),
		codes:  make(map[string]struct{}, len(existing)+incoming),
	}
	for _, code := range existing {
		idx.add(code)
	}
	return idx
}

func (idx *codeIndex) add(code string) {
	code = strings.ToUpper(code)
	idx.filter.AddString(code)
	idx.codes[code] = struct{}{}
}

func (idx *codeIndex) contains(code string) bool {
	code = strings.ToUpper(code)
	if !idx.filter.TestString(code) {
		return false
	}
	_, ok := idx.codes[code]
	return ok
}

// dedupe drops discounts whose code is already taken, either in the store
// or earlier in the import. The first occurrence wins. Automatic discounts
// without a code are always kept.
func (idx *codeIndex) dedupe(parsed [][]discount.Discount) (fresh []discount.Discount, skipped int) {
	for _, ds := range parsed {
		for _, d := range ds {
			if d.Code == "" {
				fresh = append(fresh, d)
				continue
			}
			if idx.contains(d.Code) {
				slog.Debug("skipping duplicate code", slog.String("id", d.ID), slog.String("code", d.Code))
				skipped++
				continue
			}
			idx.add(d.Code)
			fresh = append(fresh, d)
		}
	}
	return fresh, skipped
}

type discountWriter interface {
	UpsertDiscounts(ctx context.Context, storeID string, ds []discount.Discount) error
}

// writeDiscounts upserts discounts in batches of batchSize.
func writeDiscounts(ctx context.Context, w discountWriter, storeID string, ds []discount.Discount, batchSize int) error {
	if len(ds) == 0 {
		slog.Info("no new discounts to write")
		return nil
	}

	slog.Info("writing discounts to database", slog.Int("count", len(ds)))

	batches := 0
	for start := 0; start < len(ds); start += batchSize {
		end := min(start+batchSize, len(ds))
		if err := w.UpsertDiscounts(ctx, storeID, ds[start:end]); err != nil {
			return errors.Wrapf(err, "upsert batch %d-%d", start, end)
		}

		batches++
		if batches%progressEvery == 0 || end == len(ds) {
			slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(ds)))
		}
	}

	return nil
}
