package dashboard

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

type fakeRepo struct {
	mu         sync.Mutex
	statsCalls int
	movesFor   []int64
	products   []inventory.ProductTotals
	moves      []MovementRow
	match      map[string]inventory.Product
	started    chan struct{}
	gate       chan struct{}
}

func d(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func day(s string) time.Time {
	t, _ := time.Parse(dayLayout, s)
	return t
}

func newFakeRepo() *fakeRepo {
	plank := inventory.Product{ID: 1, Name: "Oak plank", Unit: "m", UnitPrice: d(50), Type: inventory.ProductTypeMaterial}
	screw := inventory.Product{ID: 2, Name: "Screw", Unit: "pcs", UnitPrice: d(1), Type: inventory.ProductTypeMaterial}
	table := inventory.Product{ID: 3, Name: "Oak table", Unit: "pcs", UnitPrice: d(900), Type: inventory.ProductTypeFinishedGood}
	return &fakeRepo{
		products: []inventory.ProductTotals{
			{Product: plank, Totals: inventory.Totals{Opening: d(10), Imported: d(5), Exported: d(8)}},
			{Product: screw, Totals: inventory.Totals{Opening: d(100), Exported: d(100)}},
			{Product: table, Totals: inventory.Totals{Imported: d(20), Exported: d(4)}},
		},
		moves: []MovementRow{
			{Day: day("2024-03-05"), Direction: inventory.DirectionImport, ProductName: "Oak table", Unit: "pcs", Quantity: d(2), Value: d(1800)},
			{Day: day("2024-03-04"), Direction: inventory.DirectionImport, ProductName: "Oak plank", Unit: "m", Quantity: d(5), Value: d(250)},
			{Day: day("2024-03-05"), Direction: inventory.DirectionExport, ProductName: "Screw", Unit: "pcs", Quantity: d(40), Value: d(40)},
			{Day: day("2024-03-05"), Direction: inventory.DirectionExport, ProductName: "Oak plank", Unit: "m", Quantity: d(8), Value: d(400)},
		},
		match: map[string]inventory.Product{"plank": plank, "table": table},
	}
}

func (f *fakeRepo) Stats(context.Context) (Stats, error) {
	f.mu.Lock()
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	return Stats{Products: 3, SalesOrders: 4, Suppliers: 1, TotalRevenue: d(3600)}, nil
}

func (f *fakeRepo) ProductTotals(context.Context) ([]inventory.ProductTotals, error) {
	return f.products, nil
}

func (f *fakeRepo) MonthlyRevenue(context.Context, int) ([]MonthAmount, error) {
	return []MonthAmount{{Month: time.March, Amount: d(3600)}}, nil
}

func (f *fakeRepo) Movements(_ context.Context, productID int64, _, _ time.Time) ([]MovementRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.movesFor = append(f.movesFor, productID)
	return f.moves, nil
}

func (f *fakeRepo) MatchProduct(_ context.Context, keyword string) (inventory.Product, bool, error) {
	p, ok := f.match[keyword]
	return p, ok, nil
}

func (f *fakeRepo) DailyRevenue(_ context.Context, productID int64) ([]DayAmount, error) {
	if productID == 3 {
		return []DayAmount{{Day: "2024-03-01", Amount: d(1800)}, {Day: "2024-03-02", Amount: d(1800)}}, nil
	}
	return []DayAmount{}, nil
}

func (f *fakeRepo) DailyUsage(context.Context, int64) ([]DayAmount, error) {
	return []DayAmount{{Day: "2024-03-05", Amount: d(400)}}, nil
}

func newTestService(t *testing.T, repo RepositoryPort) (*Service, *Cache) {
	t.Helper()
	svc, cache, _ := newTestServiceWithRedis(t, repo)
	return svc, cache
}

func newTestServiceWithRedis(t *testing.T, repo RepositoryPort) (*Service, *Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	svc := NewService(repo, cache, decimal.Zero, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC) }
	return svc, cache, mr
}

func TestOverviewFigures(t *testing.T) {
	svc, _ := newTestService(t, newFakeRepo())

	out, err := svc.Overview(context.Background(), Filter{})
	require.NoError(t, err)

	require.Equal(t, 3, out.Stats.Products)
	// Screw sits at zero and plank at seven, both below the default threshold.
	require.Equal(t, 2, out.Stats.LowStock)
	require.True(t, out.Stats.TotalRevenue.Equal(d(3600)))

	require.Len(t, out.MonthlyRevenue, 12)
	require.Equal(t, "Mar", out.MonthlyRevenue[2].Month)
	require.True(t, out.MonthlyRevenue[2].Revenue.Equal(d(3600)))
	require.True(t, out.MonthlyRevenue[0].Revenue.IsZero())

	require.Len(t, out.Materials, 1)
	require.Equal(t, "Oak plank", out.Materials[0].ProductName)
	require.True(t, out.Materials[0].Stock.Equal(d(7)))
	require.True(t, out.MaterialTotalValue.Equal(d(350)))

	require.Len(t, out.Movements, 2)
	require.Equal(t, "2024-03-04", out.Movements[0].Day)
	last := out.Movements[1]
	require.True(t, last.ImportTotal.Equal(d(2)))
	require.True(t, last.ExportTotal.Equal(d(48)))
	require.Equal(t, "Oak plank", last.ExportDetails[0].Product)
	require.True(t, last.ExportDetails[1].TotalValue.Equal(d(40)))
	require.Nil(t, out.Focus)
}

func TestOverviewIsCachedUntilBump(t *testing.T) {
	repo := newFakeRepo()
	svc, cache := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.Overview(ctx, Filter{})
	require.NoError(t, err)
	_, err = svc.Overview(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, repo.statsCalls)

	require.NoError(t, cache.Bump(ctx))
	_, err = svc.Overview(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.statsCalls)
}

func TestOverviewNotifierBumpsCache(t *testing.T) {
	repo := newFakeRepo()
	svc, cache := newTestService(t, repo)
	ctx := context.Background()
	notifier := inventory.NewNotifier(nil, cache, nil)

	_, err := svc.Overview(ctx, Filter{})
	require.NoError(t, err)
	notifier.Invalidate(ctx)
	_, err = svc.Overview(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.statsCalls)
}

func TestOverviewKeywordFocus(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	out, err := svc.Overview(ctx, Filter{Keyword: "table"})
	require.NoError(t, err)
	require.NotNil(t, out.Focus)
	require.Equal(t, SeriesRevenue, out.Focus.SeriesKind)
	require.True(t, out.Focus.Revenue.Equal(d(3600)))
	require.Len(t, out.Focus.Series, 2)

	out, err = svc.Overview(ctx, Filter{Keyword: "plank"})
	require.NoError(t, err)
	require.Equal(t, SeriesMaterialUsage, out.Focus.SeriesKind)
	require.True(t, out.Focus.Series[0].Amount.Equal(d(400)))
	require.Equal(t, []int64{3, 1}, repo.movesFor)

	out, err = svc.Overview(ctx, Filter{Keyword: "sofa"})
	require.NoError(t, err)
	require.Nil(t, out.Focus)
	require.NotEmpty(t, out.SearchMessage)
	require.Empty(t, out.Movements)
	require.Len(t, repo.movesFor, 2)
}

func TestOverviewWithoutCache(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, d(5), nil)

	out, err := svc.Overview(context.Background(), Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, out.Stats.LowStock)
	_, err = svc.Overview(context.Background(), Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.statsCalls)
}

func TestGroupMovementsMergesSameProduct(t *testing.T) {
	rows := []MovementRow{
		{Day: day("2024-03-05"), Direction: inventory.DirectionImport, ProductName: "Bolt", Quantity: d(2), Value: d(4)},
		{Day: day("2024-03-05"), Direction: inventory.DirectionImport, ProductName: "Bolt", Quantity: d(3), Value: d(6)},
	}
	out := GroupMovements(rows)
	require.Len(t, out, 1)
	require.Len(t, out[0].ImportDetails, 1)
	require.True(t, out[0].ImportDetails[0].Quantity.Equal(d(5)))
	require.True(t, out[0].ImportTotal.Equal(d(5)))
	require.Empty(t, out[0].ExportDetails)
}

func TestOverviewBuildsWhenRedisIsDown(t *testing.T) {
	repo := newFakeRepo()
	svc, _, mr := newTestServiceWithRedis(t, repo)
	mr.Close()

	out, err := svc.Overview(context.Background(), Filter{})
	require.NoError(t, err)
	require.Equal(t, 3, out.Stats.Products)
	_, err = svc.Overview(context.Background(), Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.statsCalls)
}

func TestOverviewBuildSurvivesCancelledCaller(t *testing.T) {
	repo := newFakeRepo()
	repo.started = make(chan struct{})
	repo.gate = make(chan struct{})
	svc, cache := newTestService(t, repo)
	started := repo.started

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := svc.Overview(ctx, Filter{})
		errs <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)

	repo.mu.Lock()
	close(repo.gate)
	repo.gate = nil
	repo.mu.Unlock()

	key, err := cache.Key(context.Background(), Filter{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok, err := cache.Get(context.Background(), key)
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)

	_, err = svc.Overview(context.Background(), Filter{})
	require.NoError(t, err)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Equal(t, 1, repo.statsCalls)
}
