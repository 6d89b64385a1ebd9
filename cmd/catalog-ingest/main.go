// Command catalog-ingest loads supplier catalog feeds into the products
// table. Feeds are gzip-compressed files with one JSON product per line,
// named feed1.json.gz, feed2.json.gz, ... in the data directory.
//
// Earlier feeds win: a product id present in feed1 is never overwritten by
// feed2. Cross-feed duplicates are skipped with per-feed bloom filters, so
// large overlapping feeds never pull every id into memory. The filters are
// probabilistic: a false positive drops a valid product (at the configured
// rate, about 1 in 1000), which a re-run with fresh feeds picks up.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/minishop/internal/domain/product"
	"github.com/xenking/minishop/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

type feedProduct struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
}

func main() {
	var (
		dataDir     string
		numFeeds    int
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing feedN.json.gz files")
	flag.IntVar(&numFeeds, "feeds", 2, "number of feed files to ingest")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, numFeeds, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir string, numFeeds int, databaseURL string) error {
	feeds := make([]string, numFeeds)
	for i := range numFeeds {
		feeds[i] = filepath.Join(dataDir, fmt.Sprintf("feed%d.json.gz", i+1))
	}
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	// Pass 1: one bloom filter of product ids per feed, built concurrently.
	slog.Info("pass 1: indexing feed ids", slog.Int("feeds", numFeeds))

	filters, err := indexFeeds(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "index feeds")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Pass 2: ingest in feed order so earlier feeds take precedence.
	repo := repository.NewProductRepository(pool)
	for i, f := range feeds {
		if err := ingestFeed(ctx, repo, i, f, filters[:i]); err != nil {
			return errors.Wrapf(err, "ingest feed %d", i+1)
		}
	}

	return nil
}

// indexFeeds builds a bloom filter of the product ids in each feed.
func indexFeeds(ctx context.Context, feeds []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64

			err := streamFeed(ctx, f, func(p *feedProduct) {
				filter.AddString(p.ID)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("feed", i+1), slog.Uint64("products", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "index feed %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("feed", i+1), slog.Uint64("products", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// ingestFeed upserts one feed's products, skipping ids already claimed by
// an earlier feed (via its bloom filter) or seen earlier in this feed.
func ingestFeed(ctx context.Context, repo *repository.ProductRepository, idx int, path string, earlier []*bloom.BloomFilter) error {
	seen := make(map[string]struct{})
	var ingested, skipped uint64

	err := streamFeed(ctx, path, func(p *feedProduct) {
		for _, f := range earlier {
			if f.TestString(p.ID) {
				skipped++
				return
			}
		}
		if _, dup := seen[p.ID]; dup {
			skipped++
			return
		}
		seen[p.ID] = struct{}{}

		if err := repo.Upsert(ctx, &product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Category:    p.Category,
			Stock:       p.Stock,
		}); err != nil {
			slog.Error("upsert failed", slog.String("id", p.ID), slog.String("error", err.Error()))
			return
		}

		ingested++
		if ingested%progressEvery == 0 {
			slog.Info("pass 2 progress", slog.Int("feed", idx+1), slog.Uint64("ingested", ingested))
		}
	})
	if err != nil {
		return err
	}

	slog.Info("pass 2 complete",
		slog.Int("feed", idx+1),
		slog.Uint64("ingested", ingested),
		slog.Uint64("skipped", skipped),
	)
	return nil
}

// streamFeed decompresses a feed and calls fn for each well-formed line.
// Malformed lines and products without an id or name are counted, logged
// once at the end, and otherwise ignored.
func streamFeed(ctx context.Context, path string, fn func(p *feedProduct)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var malformed uint64
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var p feedProduct
		if err := json.Unmarshal(line, &p); err != nil || p.ID == "" || p.Name == "" || p.Stock < 0 || p.Price.IsNegative() {
			malformed++
			continue
		}
		fn(&p)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	if malformed > 0 {
		slog.Warn("skipped malformed lines", slog.String("feed", path), slog.Uint64("count", malformed))
	}
	return nil
}
