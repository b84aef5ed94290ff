// Command seed-db loads menu items into the database. Seed files are JSON
// arrays of items, optionally gzip-compressed (.json.gz).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/yumyard-cafe/internal/domain/menu"
	"github.com/xenking/yumyard-cafe/internal/storage/postgres"
)

type addOnJSON struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type menuItemJSON struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	Category      string           `json:"category"`
	Tags          []string         `json:"tags"`
	AddOns        []addOnJSON      `json:"addOns"`
	Available     *bool            `json:"available"`
	Image         string           `json:"image"`
	DealPrice     *decimal.Decimal `json:"dealPrice"`
	DealExpiresAt *time.Time       `json:"dealExpiresAt"`
	ComboItems    []string         `json:"comboItems"`
}

func (j menuItemJSON) item() menu.Item {
	it := menu.Item{
		ID:            j.ID,
		Name:          j.Name,
		Description:   j.Description,
		Price:         j.Price,
		Category:      j.Category,
		Tags:          j.Tags,
		Available:     j.Available == nil || *j.Available,
		Image:         j.Image,
		DealExpiresAt: j.DealExpiresAt,
		ComboItems:    j.ComboItems,
	}
	for _, a := range j.AddOns {
		it.AddOns = append(it.AddOns, menu.AddOn{ID: a.ID, Name: a.Name, Price: a.Price})
	}
	if j.DealPrice != nil {
		it.DealPrice = decimal.NewNullDecimal(*j.DealPrice)
	}
	return it
}

func main() {
	var (
		databaseURL string
		menuFiles   string
		verbose     bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&menuFiles, "menu", "db/seed/menu.json", "comma separated menu seed files (.json or .json.gz)")
	flag.BoolVar(&verbose, "v", false, "log every upserted item")
	flag.Parse()

	lg, err := zap.NewProduction()
	if verbose {
		lg, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, strings.Split(menuFiles, ",")); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, files []string) error {
	items, err := readMenus(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Menu files read", zap.Int("files", len(files)), zap.Int("items", len(items)))

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewMenuRepository(pool)
	return postgres.NewTransactor(pool).InTx(ctx, func(ctx context.Context) error {
		for i := range items {
			if err := repo.Upsert(ctx, &items[i]); err != nil {
				return err
			}
			lg.Debug("Upserted menu item", zap.String("id", items[i].ID), zap.String("name", items[i].Name))
		}
		return nil
	})
}

// readMenus decodes every file concurrently. Items are returned in file
// order; a later file overrides an earlier item with the same id.
func readMenus(ctx context.Context, files []string) ([]menu.Item, error) {
	parsed := make([][]menuItemJSON, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		path = strings.TrimSpace(path)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			items, err := readMenu(path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			parsed[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		out   []menu.Item
		index = make(map[string]int)
	)
	for _, items := range parsed {
		for _, j := range items {
			if j.ID == "" || j.Name == "" || j.Category == "" {
				return nil, errors.Errorf("menu item %q: id, name and category are required", j.ID)
			}
			if at, ok := index[j.ID]; ok {
				out[at] = j.item()
				continue
			}
			index[j.ID] = len(out)
			out = append(out, j.item())
		}
	}
	return out, nil
}

func readMenu(path string) ([]menuItemJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var items []menuItemJSON
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, errors.Wrap(err, "decode menu")
	}
	return items, nil
}
