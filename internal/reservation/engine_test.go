package reservation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/train-reservation/internal/catalog"
	"github.com/iliyamo/train-reservation/internal/ledger"
	"github.com/iliyamo/train-reservation/internal/model"
	"github.com/iliyamo/train-reservation/internal/queue"
)

var fixedNow = time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func trains() []model.Train {
	return []model.Train{
		{ID: 1, Name: "Vaigai Express", Source: "Chennai", Destination: "Trichy", Departure: "13:40", Arrival: "18:10", TotalSeats: 1, AvailableSeats: 1, Fare: decimal.RequireFromString("450")},
		{ID: 2, Name: "Pallavan Express", Source: "Chennai", Destination: "Karaikudi", Departure: "15:45", Arrival: "23:00", TotalSeats: 4, AvailableSeats: 4, Fare: decimal.RequireFromString("310.75")},
		{ID: 3, Name: "Rockfort Express", Source: "Chennai", Destination: "Trichy", Departure: "22:45", Arrival: "05:20", TotalSeats: 30, AvailableSeats: 30, Fare: decimal.RequireFromString("275")},
	}
}

type fixture struct {
	engine  *Engine
	catalog *catalog.Memory
	ledger  *ledger.Memory
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	cat, err := catalog.NewMemory(trains())
	require.NoError(t, err)
	led := ledger.NewMemory()
	opts = append([]Option{WithLogger(quietLogger()), WithClock(func() time.Time { return fixedNow })}, opts...)
	return fixture{engine: New(cat, led, opts...), catalog: cat, ledger: led}
}

// assertConsistent checks seat conservation and seat uniqueness for every
// train in the catalog.
func assertConsistent(t *testing.T, cat Catalog, led Ledger, trainIDs ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range trainIDs {
		train, err := cat.GetByID(ctx, id)
		require.NoError(t, err)
		tickets, err := led.ListByTrain(ctx, id)
		require.NoError(t, err)
		seats := make(map[int]bool)
		booked := 0
		for _, tk := range tickets {
			if !tk.Active() {
				continue
			}
			booked++
			assert.False(t, seats[tk.SeatNumber], "train %d: seat %d held twice", id, tk.SeatNumber)
			assert.True(t, tk.SeatNumber >= 1 && tk.SeatNumber <= train.TotalSeats, "train %d: seat %d out of range", id, tk.SeatNumber)
			seats[tk.SeatNumber] = true
		}
		assert.Equal(t, train.TotalSeats, train.AvailableSeats+booked, "train %d: seat conservation", id)
	}
}

func TestEngine_ScenarioA_FullTrain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.engine.Book(ctx, 1, "Kavya", "kavya@mail.in", "9000000001")
	require.NoError(t, err)
	assert.Equal(t, 1, tk.SeatNumber)
	assert.Equal(t, model.StatusBooked, tk.Status)
	assert.True(t, decimal.RequireFromString("450").Equal(tk.Fare))
	assert.Equal(t, fixedNow, tk.BookedAt)

	train, err := f.engine.GetTrain(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, train.AvailableSeats)

	_, err = f.engine.Book(ctx, 1, "Vikram", "vikram@mail.in", "9000000002")
	assert.ErrorIs(t, err, model.ErrNoSeatsAvailable)

	assertConsistent(t, f.catalog, f.ledger, 1)
}

func TestEngine_ScenarioB_CancelReleasesLowestSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Book(ctx, 1, "Kavya", "kavya@mail.in", "9000000001")
	require.NoError(t, err)

	res, err := f.engine.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, res.Partial())
	assert.Equal(t, first.ID, res.TicketID)
	assert.Equal(t, int64(1), res.TrainID)

	train, err := f.engine.GetTrain(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, train.AvailableSeats)

	second, err := f.engine.Book(ctx, 1, "Vikram", "vikram@mail.in", "9000000002")
	require.NoError(t, err)
	assert.Equal(t, 1, second.SeatNumber)
	assert.Greater(t, second.ID, first.ID)

	old, err := f.engine.GetTicket(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, old.Status, "cancelled tickets keep their record")

	assertConsistent(t, f.catalog, f.ledger, 1)
}

func TestEngine_ScenarioC_UpdateDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.engine.Book(ctx, 2, "Kavya", "kavya@mail.in", "9000000001")
	require.NoError(t, err)

	require.NoError(t, f.engine.UpdateDetails(ctx, tk.ID, " Kavya R ", "kavya.r@mail.in", "9000000009"))
	v, err := f.engine.GetTicket(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kavya R", v.PassengerName)
	assert.Equal(t, "kavya.r@mail.in", v.PassengerEmail)
	assert.Equal(t, "9000000009", v.PassengerPhone)
	assert.Equal(t, tk.SeatNumber, v.SeatNumber)

	_, err = f.engine.Cancel(ctx, tk.ID)
	require.NoError(t, err)
	err = f.engine.UpdateDetails(ctx, tk.ID, "Someone", "else@mail.in", "1")
	assert.ErrorIs(t, err, model.ErrTicketNotActive)

	err = f.engine.UpdateDetails(ctx, 999, "Someone", "else@mail.in", "1")
	assert.ErrorIs(t, err, model.ErrTicketNotFound)
}

func TestEngine_ScenarioD_SearchNoRoute(t *testing.T) {
	f := newFixture(t)

	got, err := f.engine.Search(context.Background(), "Chennai", "Madurai")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = f.engine.Search(context.Background(), " chennai", "TRICHY ")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}

func TestEngine_ScenarioE_ConcurrentLastSeat(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		start := make(chan struct{})
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = f.engine.Book(ctx, 1, "P", "p@mail.in", "1")
			}(i)
		}
		close(start)
		wg.Wait()

		ok, full := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrNoSeatsAvailable):
				full++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, full)

		train, err := f.engine.GetTrain(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, train.AvailableSeats)
	}
}

func TestEngine_CancelTwiceIsRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.engine.Book(ctx, 2, "Kavya", "kavya@mail.in", "1")
	require.NoError(t, err)
	_, err = f.engine.Book(ctx, 2, "Vikram", "vikram@mail.in", "2")
	require.NoError(t, err)
	_, err = f.engine.Cancel(ctx, tk.ID)
	require.NoError(t, err)

	before, err := f.engine.GetTrain(ctx, 2)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = f.engine.Cancel(ctx, tk.ID)
		assert.ErrorIs(t, err, model.ErrAlreadyCancelled)
	}
	after, err := f.engine.GetTrain(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, before.AvailableSeats, after.AvailableSeats)

	_, err = f.engine.Cancel(ctx, 12345)
	assert.ErrorIs(t, err, model.ErrTicketNotFound)
}

func TestEngine_MonotonicIdentifiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 20; i++ {
		tk, err := f.engine.Book(ctx, 3, "P", "p@mail.in", "1")
		require.NoError(t, err)
		assert.Greater(t, tk.ID, last)
		last = tk.ID
		if i%3 == 0 {
			_, err = f.engine.Cancel(ctx, tk.ID)
			require.NoError(t, err)
		}
	}
}

func TestEngine_BookUnknownTrain(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Book(context.Background(), 77, "P", "p@mail.in", "1")
	assert.ErrorIs(t, err, model.ErrTrainNotFound)
}

func TestEngine_BookRequiresContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Book(ctx, 2, "  ", "p@mail.in", "1")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = f.engine.Book(ctx, 2, "P", "", "1")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	train, err := f.engine.GetTrain(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, train.AvailableSeats)
}

func TestEngine_RandomOperationsKeepInvariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var issued sync.Map
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 150; i++ {
				trainID := int64(rng.Intn(3) + 1)
				switch rng.Intn(3) {
				case 0, 1:
					if tk, err := f.engine.Book(ctx, trainID, "P", "p@mail.in", "1"); err == nil {
						_, dup := issued.LoadOrStore(tk.ID, true)
						assert.False(t, dup)
					} else {
						assert.ErrorIs(t, err, model.ErrNoSeatsAvailable)
					}
				case 2:
					id := int64(rng.Intn(300) + 1)
					if _, err := f.engine.Cancel(ctx, id); err != nil {
						assert.True(t, errors.Is(err, model.ErrTicketNotFound) || errors.Is(err, model.ErrAlreadyCancelled), "unexpected %v", err)
					}
				}
			}
		}(int64(w))
	}
	wg.Wait()

	assertConsistent(t, f.catalog, f.ledger, 1, 2, 3)
}

// flakyCatalog fails AdjustAvailability calls with the configured delta.
type flakyCatalog struct {
	*catalog.Memory
	failDelta atomic.Int64
}

func (c *flakyCatalog) AdjustAvailability(ctx context.Context, trainID int64, delta int) (model.Train, error) {
	if f := c.failDelta.Load(); f != 0 && int64(delta) == f {
		return model.Train{}, model.NewStorageError("adjust availability", errors.New("connection reset"))
	}
	return c.Memory.AdjustAvailability(ctx, trainID, delta)
}

type brokenRemoveLedger struct {
	*ledger.Memory
}

func (l brokenRemoveLedger) Remove(context.Context, int64) error {
	return model.NewStorageError("remove ticket", errors.New("disk full"))
}

func TestEngine_BookRollsBackWhenAdjustFails(t *testing.T) {
	mem, err := catalog.NewMemory(trains())
	require.NoError(t, err)
	cat := &flakyCatalog{Memory: mem}
	cat.failDelta.Store(-1)
	led := ledger.NewMemory()
	e := New(cat, led, WithLogger(quietLogger()))
	ctx := context.Background()

	_, err = e.Book(ctx, 2, "P", "p@mail.in", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStorage)
	assert.NotErrorIs(t, err, ErrRollbackFailed)

	tickets, err := led.ListByTrain(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, tickets, "the inserted ticket must be rolled back")
	assertConsistent(t, cat, led, 2)

	cat.failDelta.Store(0)
	tk, err := e.Book(ctx, 2, "P", "p@mail.in", "1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tk.ID, "ids of rolled back tickets are not reused")
	assert.Equal(t, 1, tk.SeatNumber)
}

func TestEngine_BookReportsFailedRollback(t *testing.T) {
	mem, err := catalog.NewMemory(trains())
	require.NoError(t, err)
	cat := &flakyCatalog{Memory: mem}
	cat.failDelta.Store(-1)
	led := ledger.NewMemory()
	e := New(cat, brokenRemoveLedger{led}, WithLogger(quietLogger()))
	ctx := context.Background()

	_, err = e.Book(ctx, 2, "P", "p@mail.in", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRollbackFailed)
	assert.ErrorIs(t, err, model.ErrStorage)

	cat.failDelta.Store(0)
	n, err := e.Reconcile(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, -1, n)
	assertConsistent(t, cat, led, 2)
}

func TestEngine_CancelPartialWhenSeatReleaseFails(t *testing.T) {
	mem, err := catalog.NewMemory(trains())
	require.NoError(t, err)
	cat := &flakyCatalog{Memory: mem}
	led := ledger.NewMemory()
	e := New(cat, led, WithLogger(quietLogger()))
	ctx := context.Background()

	tk, err := e.Book(ctx, 1, "P", "p@mail.in", "1")
	require.NoError(t, err)

	cat.failDelta.Store(1)
	res, err := e.Cancel(ctx, tk.ID)
	require.NoError(t, err, "a partial cancellation is not a failure")
	assert.True(t, res.Partial())
	assert.False(t, res.SeatReleased)
	assert.ErrorIs(t, res.Warning, model.ErrStorage)

	got, err := led.GetByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status, "the cancellation is kept")

	_, err = e.Cancel(ctx, tk.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyCancelled)

	train, err := cat.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, train.AvailableSeats, "the seat stays lost until reconciled")

	cat.failDelta.Store(0)
	n, err := e.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assertConsistent(t, cat, led, 1)

	n, err = e.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_ReconcileUnknownTrain(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Reconcile(context.Background(), 404)
	assert.ErrorIs(t, err, model.ErrTrainNotFound)
}

func TestEngine_NoSeatNumberIsSurfaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A ticket written behind the engine's back leaves the catalog
	// believing seat 1 on train 1 is still free.
	_, err := f.ledger.Insert(ctx, model.Ticket{TrainID: 1, PassengerName: "Ghost", PassengerEmail: "g@mail.in", SeatNumber: 1})
	require.NoError(t, err)

	_, err = f.engine.Book(ctx, 1, "P", "p@mail.in", "1")
	assert.ErrorIs(t, err, model.ErrNoSeatAvailable)

	train, err := f.engine.GetTrain(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, train.AvailableSeats)
}

func TestEngine_GetTicketUnknownTrain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Insert(ctx, model.Ticket{TrainID: 99, PassengerName: "Orphan", PassengerEmail: "o@mail.in", SeatNumber: 1, BookedAt: fixedNow})
	require.NoError(t, err)

	v, err := f.engine.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.Unknown, v.TrainName)
	assert.Equal(t, model.Unknown, v.Source)

	list, err := f.engine.ListTicketsForPassenger(ctx, "O@MAIL.IN")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.Unknown, list[0].TrainName)

	_, err = f.engine.GetTicket(ctx, 1000)
	assert.ErrorIs(t, err, model.ErrTicketNotFound)
}

func TestEngine_ListTicketsForPassenger(t *testing.T) {
	now := fixedNow
	clock := func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	f := newFixture(t, WithClock(clock))
	ctx := context.Background()

	a, err := f.engine.Book(ctx, 3, "Asha", "asha@mail.in", "1")
	require.NoError(t, err)
	_, err = f.engine.Book(ctx, 2, "Bala", "bala@mail.in", "2")
	require.NoError(t, err)
	c, err := f.engine.Book(ctx, 2, "Asha", "ASHA@mail.in", "1")
	require.NoError(t, err)

	list, err := f.engine.ListTicketsForPassenger(ctx, "asha@mail.in")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, "Rockfort Express", list[0].TrainName)
	assert.Equal(t, c.ID, list[1].ID)
	assert.Equal(t, "Pallavan Express", list[1].TrainName)
	assert.Equal(t, "15:45", list[1].Departure)
	assert.True(t, list[0].BookedAt.Before(list[1].BookedAt))
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, ev queue.TicketEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func TestEngine_PublishesLifecycleEvents(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev queue.TicketEvent) bool {
		return ev.Type == queue.EventTicketBooked && ev.SeatNumber == 1 && ev.TrainName == "Pallavan Express" && ev.Fare == "310.75"
	})).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev queue.TicketEvent) bool {
		return ev.Type == queue.EventTicketCancelled && ev.Status == "CANCELLED" && ev.SeatReleased
	})).Return(errors.New("broker down")).Once()

	f := newFixture(t, WithPublisher(pub))
	ctx := context.Background()

	tk, err := f.engine.Book(ctx, 2, "P", "p@mail.in", "1")
	require.NoError(t, err)
	res, err := f.engine.Cancel(ctx, tk.ID)
	require.NoError(t, err, "publish failures do not fail the operation")
	assert.False(t, res.Partial())

	pub.AssertExpectations(t)
}

func TestEngine_FailedOperationsPublishNothing(t *testing.T) {
	pub := &mockPublisher{}
	f := newFixture(t, WithPublisher(pub))
	ctx := context.Background()

	_, err := f.engine.Book(ctx, 404, "P", "p@mail.in", "1")
	require.Error(t, err)
	_, err = f.engine.Cancel(ctx, 404)
	require.Error(t, err)

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestNew_PanicsOnNilDependencies(t *testing.T) {
	assert.Panics(t, func() { New(nil, ledger.NewMemory()) })
}
