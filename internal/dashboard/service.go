package dashboard

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

// RepositoryPort lists the aggregate queries the dashboard needs.
type RepositoryPort interface {
	Stats(ctx context.Context) (Stats, error)
	ProductTotals(ctx context.Context) ([]inventory.ProductTotals, error)
	MonthlyRevenue(ctx context.Context, year int) ([]MonthAmount, error)
	Movements(ctx context.Context, productID int64, from, to time.Time) ([]MovementRow, error)
	MatchProduct(ctx context.Context, keyword string) (inventory.Product, bool, error)
	DailyRevenue(ctx context.Context, productID int64) ([]DayAmount, error)
	DailyUsage(ctx context.Context, productID int64) ([]DayAmount, error)
}

const buildTimeout = 30 * time.Second

// Service builds the dashboard overview behind the version cache.
type Service struct {
	repo      RepositoryPort
	cache     *Cache
	threshold decimal.Decimal
	logger    *slog.Logger
	group     singleflight.Group
	now       func() time.Time
}

// NewService wires the repository with the cache.
func NewService(repo RepositoryPort, cache *Cache, lowStockThreshold decimal.Decimal, logger *slog.Logger) *Service {
	if !lowStockThreshold.IsPositive() {
		lowStockThreshold = DefaultLowStockThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, threshold: lowStockThreshold, logger: logger, now: time.Now}
}

// Overview returns the dashboard for filter. Concurrent callers asking for the
// same key share a single build, which outlives a cancelled caller up to
// buildTimeout.
func (s *Service) Overview(ctx context.Context, filter Filter) (Overview, error) {
	filter.Keyword = strings.TrimSpace(filter.Keyword)
	key, err := s.cache.Key(ctx, filter)
	if err != nil {
		s.logger.Warn("dashboard cache version", slog.Any("error", err))
		return s.build(ctx, filter)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()
		cached, ok, err := s.cache.Get(bctx, key)
		if err != nil {
			s.logger.Warn("dashboard cache read", slog.String("key", key), slog.Any("error", err))
		}
		if ok {
			return cached, nil
		}
		out, err := s.build(bctx, filter)
		if err != nil {
			return Overview{}, err
		}
		if err := s.cache.Put(bctx, key, out); err != nil {
			s.logger.Warn("dashboard cache write", slog.String("key", key), slog.Any("error", err))
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return Overview{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Overview{}, res.Err
		}
		return res.Val.(Overview), nil
	}
}

func (s *Service) build(ctx context.Context, filter Filter) (Overview, error) {
	out := Overview{GeneratedAt: s.now().UTC()}

	var (
		product inventory.Product
		matched bool
	)
	if filter.Keyword != "" {
		var err error
		product, matched, err = s.repo.MatchProduct(ctx, filter.Keyword)
		if err != nil {
			return Overview{}, err
		}
		if !matched {
			out.SearchMessage = "no product matches keyword " + filter.Keyword
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := s.repo.Stats(gctx)
		if err != nil {
			return err
		}
		totals, err := s.repo.ProductTotals(gctx)
		if err != nil {
			return err
		}
		stats.LowStock = CountLowStock(totals, s.threshold)
		out.Stats = stats
		out.Materials, out.MaterialTotalValue = MaterialsInStock(totals)
		return nil
	})
	g.Go(func() error {
		rows, err := s.repo.MonthlyRevenue(gctx, out.GeneratedAt.Year())
		if err != nil {
			return err
		}
		out.MonthlyRevenue = FillMonths(rows)
		return nil
	})
	g.Go(func() error {
		out.Movements = []DailyMovement{}
		if filter.Keyword != "" && !matched {
			return nil
		}
		rows, err := s.repo.Movements(gctx, product.ID, filter.From, filter.To)
		if err != nil {
			return err
		}
		out.Movements = GroupMovements(rows)
		return nil
	})
	if matched {
		g.Go(func() error {
			focus, err := s.focus(gctx, product)
			if err != nil {
				return err
			}
			out.Focus = &focus
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("build dashboard", slog.Any("error", err))
		return Overview{}, err
	}
	return out, nil
}

func (s *Service) focus(ctx context.Context, p inventory.Product) (Focus, error) {
	revenue, err := s.repo.DailyRevenue(ctx, p.ID)
	if err != nil {
		return Focus{}, err
	}
	f := Focus{
		ProductID:   p.ID,
		ProductName: p.Name,
		ProductType: p.Type,
		Revenue:     sumDays(revenue),
		SeriesKind:  SeriesRevenue,
		Series:      revenue,
	}
	if p.Type == inventory.ProductTypeMaterial {
		usage, err := s.repo.DailyUsage(ctx, p.ID)
		if err != nil {
			return Focus{}, err
		}
		f.SeriesKind = SeriesMaterialUsage
		f.Series = usage
	}
	return f, nil
}
