package reconciler

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheres-my-table/internal/domain"
)

// fakeChannel implements realtime.Channel in-memory and records every
// subscription call.
type fakeChannel struct {
	mu        sync.Mutex
	nextID    int
	availFns  map[int]func(domain.AvailabilityUpdate)
	eventFns  map[int]func(domain.ReservationEvent)
	statusFns map[int]func(domain.TableStatusUpdate)
	connFns   map[int]func(domain.ConnectionStatus)

	dateSubs   []string
	dateUnsubs []string
	tableSubs  []string
	refreshes  []string

	failSubscribe bool
	nilUnsubs     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		availFns:  make(map[int]func(domain.AvailabilityUpdate)),
		eventFns:  make(map[int]func(domain.ReservationEvent)),
		statusFns: make(map[int]func(domain.TableStatusUpdate)),
		connFns:   make(map[int]func(domain.ConnectionStatus)),
	}
}

func (f *fakeChannel) SubscribeToDate(date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubscribe {
		return errors.New("broker down")
	}
	f.dateSubs = append(f.dateSubs, date)
	return nil
}

func (f *fakeChannel) UnsubscribeFromDate(date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dateUnsubs = append(f.dateUnsubs, date)
	return nil
}

func (f *fakeChannel) SubscribeToTable(tableID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubscribe {
		return errors.New("broker down")
	}
	f.tableSubs = append(f.tableSubs, tableID)
	return nil
}

func (f *fakeChannel) RequestAvailabilityUpdate(date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes = append(f.refreshes, date)
	return nil
}

func (f *fakeChannel) OnAvailabilityUpdate(fn func(domain.AvailabilityUpdate)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.availFns[id] = fn
	if f.nilUnsubs {
		return nil
	}
	return func() { f.mu.Lock(); defer f.mu.Unlock(); delete(f.availFns, id) }
}

func (f *fakeChannel) OnReservationEvent(fn func(domain.ReservationEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.eventFns[id] = fn
	if f.nilUnsubs {
		return nil
	}
	return func() { f.mu.Lock(); defer f.mu.Unlock(); delete(f.eventFns, id) }
}

func (f *fakeChannel) OnTableStatusUpdate(fn func(domain.TableStatusUpdate)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.statusFns[id] = fn
	if f.nilUnsubs {
		return nil
	}
	return func() { f.mu.Lock(); defer f.mu.Unlock(); delete(f.statusFns, id) }
}

func (f *fakeChannel) OnConnectionChange(fn func(domain.ConnectionStatus)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.connFns[id] = fn
	if f.nilUnsubs {
		return nil
	}
	return func() { f.mu.Lock(); defer f.mu.Unlock(); delete(f.connFns, id) }
}

func (f *fakeChannel) emitAvailability(u domain.AvailabilityUpdate) {
	f.mu.Lock()
	fns := make([]func(domain.AvailabilityUpdate), 0, len(f.availFns))
	for _, fn := range f.availFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

func (f *fakeChannel) emitEvent(e domain.ReservationEvent) {
	f.mu.Lock()
	fns := make([]func(domain.ReservationEvent), 0, len(f.eventFns))
	for _, fn := range f.eventFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

func (f *fakeChannel) emitTableStatus(u domain.TableStatusUpdate) {
	f.mu.Lock()
	fns := make([]func(domain.TableStatusUpdate), 0, len(f.statusFns))
	for _, fn := range f.statusFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

func (f *fakeChannel) emitConnection(s domain.ConnectionStatus) {
	f.mu.Lock()
	fns := make([]func(domain.ConnectionStatus), 0, len(f.connFns))
	for _, fn := range f.connFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// newTestReconciler returns a started reconciler driven by a stub clock.
// Advancing the clock is the caller's job.
func newTestReconciler(t *testing.T, ch *fakeChannel, opts Options) (*Reconciler, *time.Time) {
	t.Helper()
	r := New(ch, nil, opts)
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	now := base
	r.now = func() time.Time { return now }
	r.Start()
	t.Cleanup(r.Stop)
	return r, &now
}

func TestRecentEventsBounded(t *testing.T) {
	ch := newFakeChannel()
	r, _ := newTestReconciler(t, ch, Options{MaxRecentEvents: 50})

	for i := 0; i < 51; i++ {
		ch.emitEvent(domain.ReservationEvent{
			Type:    domain.EventReservationCreated,
			TableID: fmt.Sprintf("t%d", i),
		})
	}

	events := r.RecentEvents()
	require.Len(t, events, 50)
	// Newest first; the very first event (t0) was evicted.
	assert.Equal(t, "t50", events[0].TableID)
	for _, e := range events {
		assert.NotEqual(t, "t0", e.TableID)
	}
}

func TestAvailabilityThrottleDropsInsideWindow(t *testing.T) {
	ch := newFakeChannel()
	r, now := newTestReconciler(t, ch, Options{UpdateThrottle: time.Second})

	ch.emitAvailability(domain.AvailabilityUpdate{Date: "2026-09-01", TimeSlot: "19:00", Status: domain.SlotOpen, Timestamp: *now})

	// Inside the window: dropped, not queued.
	*now = now.Add(500 * time.Millisecond)
	ch.emitAvailability(domain.AvailabilityUpdate{Date: "2026-09-01", TimeSlot: "19:00", Status: domain.SlotFull, Timestamp: *now})

	u, ok := r.GetAvailabilityForSlot("2026-09-01", "19:00")
	require.True(t, ok)
	assert.Equal(t, domain.SlotOpen, u.Status)

	// Past the window: applied.
	*now = now.Add(600 * time.Millisecond)
	ch.emitAvailability(domain.AvailabilityUpdate{Date: "2026-09-01", TimeSlot: "19:00", Status: domain.SlotFull, Timestamp: *now})

	u, ok = r.GetAvailabilityForSlot("2026-09-01", "19:00")
	require.True(t, ok)
	assert.Equal(t, domain.SlotFull, u.Status)
}

func TestThrottleGateSharedAcrossUpdateKinds(t *testing.T) {
	ch := newFakeChannel()
	r, now := newTestReconciler(t, ch, Options{UpdateThrottle: time.Second})

	ch.emitAvailability(domain.AvailabilityUpdate{Date: "2026-09-01", TimeSlot: "19:00", Status: domain.SlotOpen, Timestamp: *now})

	*now = now.Add(200 * time.Millisecond)
	ch.emitTableStatus(domain.TableStatusUpdate{TableID: "t1", Status: domain.TableOccupied, Timestamp: *now})

	_, ok := r.GetTableStatus("t1")
	assert.False(t, ok, "table status inside the shared window must be dropped")
}

func TestEventsAreNeverThrottled(t *testing.T) {
	ch := newFakeChannel()
	r, now := newTestReconciler(t, ch, Options{UpdateThrottle: time.Second})

	for i := 0; i < 5; i++ {
		*now = now.Add(time.Millisecond)
		ch.emitEvent(domain.ReservationEvent{Type: domain.EventTableAssigned, TableID: "t1", Timestamp: *now})
	}

	assert.Len(t, r.GetRecentEventsForTable("t1"), 5)
}

func TestIsSlotAvailableOptimisticDefault(t *testing.T) {
	ch := newFakeChannel()
	r, _ := newTestReconciler(t, ch, Options{})

	// No data at all: available. Missing data must not block the UI.
	assert.True(t, r.IsSlotAvailable("2026-09-01", "19:00"))
	assert.True(t, r.IsSlotAvailable("2026-09-01", "19:00", "t1"))
}

func TestIsSlotAvailableTableStatusWins(t *testing.T) {
	ch := newFakeChannel()
	r, now := newTestReconciler(t, ch, Options{})

	ch.emitTableStatus(domain.TableStatusUpdate{TableID: "t1", Status: domain.TableOccupied, Timestamp: *now})

	assert.False(t, r.IsSlotAvailable("2026-09-01", "19:00", "t1"))
	// Other tables still fall back to the optimistic default.
	assert.True(t, r.IsSlotAvailable("2026-09-01", "19:00", "t2"))
}

func TestIsSlotAvailableSlotRecord(t *testing.T) {
	ch := newFakeChannel()
	r, now := newTestReconciler(t, ch, Options{UpdateThrottle: time.Millisecond})

	ch.emitAvailability(domain.AvailabilityUpdate{Date: "2026-09-01", TimeSlot: "19:00", Status: domain.SlotFull, Timestamp: *now})
	*now = now.Add(10 * time.Millisecond)
	ch.emitAvailability(domain.AvailabilityUpdate{Date: "2026-09-01", TimeSlot: "20:00", Status: domain.SlotLimited, Timestamp: *now})

	assert.False(t, r.IsSlotAvailable("2026-09-01", "19:00"))
	assert.True(t, r.IsSlotAvailable("2026-09-01", "20:00"))
}

func TestGetAvailabilitiesForDateSorted(t *testing.T) {
	ch := newFakeChannel()
	r, now := newTestReconciler(t, ch, Options{UpdateThrottle: time.Millisecond})

	for _, slot := range []string{"21:00", "18:00", "19:30"} {
		*now = now.Add(10 * time.Millisecond)
		ch.emitAvailability(domain.AvailabilityUpdate{Date: "2026-09-01", TimeSlot: slot, Status: domain.SlotOpen, Timestamp: *now})
	}
	*now = now.Add(10 * time.Millisecond)
	ch.emitAvailability(domain.AvailabilityUpdate{Date: "2026-09-02", TimeSlot: "19:00", Status: domain.SlotOpen, Timestamp: *now})

	got := r.GetAvailabilitiesForDate("2026-09-01")
	require.Len(t, got, 3)
	assert.Equal(t, "18:00", got[0].TimeSlot)
	assert.Equal(t, "19:30", got[1].TimeSlot)
	assert.Equal(t, "21:00", got[2].TimeSlot)
}

func TestSubscribeToDateIdempotent(t *testing.T) {
	ch := newFakeChannel()
	r, _ := newTestReconciler(t, ch, Options{})

	require.NoError(t, r.SubscribeToDate("2026-09-01"))
	require.NoError(t, r.SubscribeToDate("2026-09-01"))
	assert.Equal(t, []string{"2026-09-01"}, ch.dateSubs)

	require.NoError(t, r.UnsubscribeFromDate("2026-09-01"))
	require.NoError(t, r.UnsubscribeFromDate("2026-09-01"))
	assert.Equal(t, []string{"2026-09-01"}, ch.dateUnsubs)

	// After unsubscribing the date can be watched again.
	require.NoError(t, r.SubscribeToDate("2026-09-01"))
	assert.Len(t, ch.dateSubs, 2)
}

func TestSubscribeFailureRollsBackMembership(t *testing.T) {
	ch := newFakeChannel()
	r, _ := newTestReconciler(t, ch, Options{})

	ch.failSubscribe = true
	require.Error(t, r.SubscribeToDate("2026-09-01"))

	ch.failSubscribe = false
	require.NoError(t, r.SubscribeToDate("2026-09-01"))
	assert.Equal(t, []string{"2026-09-01"}, ch.dateSubs)
}

func TestSubscribeToTableIdempotent(t *testing.T) {
	ch := newFakeChannel()
	r, _ := newTestReconciler(t, ch, Options{})

	require.NoError(t, r.SubscribeToTable("t1"))
	require.NoError(t, r.SubscribeToTable("t1"))
	assert.Equal(t, []string{"t1"}, ch.tableSubs)
}

func TestEvictStale(t *testing.T) {
	ch := newFakeChannel()
	r, now := newTestReconciler(t, ch, Options{UpdateThrottle: time.Millisecond, MaxEntryAge: 5 * time.Minute})

	ch.emitAvailability(domain.AvailabilityUpdate{Date: "2026-09-01", TimeSlot: "19:00", Status: domain.SlotOpen, Timestamp: *now})
	ch.emitEvent(domain.ReservationEvent{Type: domain.EventTableAssigned, TableID: "t1", Timestamp: *now})
	*now = now.Add(10 * time.Millisecond)
	ch.emitTableStatus(domain.TableStatusUpdate{TableID: "t1", Status: domain.TableReserved, Timestamp: *now})

	// Fresh entry added later; must survive eviction.
	*now = now.Add(4 * time.Minute)
	ch.emitEvent(domain.ReservationEvent{Type: domain.EventTableFreed, TableID: "t2", Timestamp: *now})

	*now = now.Add(90 * time.Second) // old entries now past max age
	r.EvictStale()

	_, ok := r.GetAvailabilityForSlot("2026-09-01", "19:00")
	assert.False(t, ok)
	_, ok = r.GetTableStatus("t1")
	assert.False(t, ok)
	assert.Empty(t, r.GetRecentEventsForTable("t1"))
	assert.Len(t, r.GetRecentEventsForTable("t2"), 1)
}

func TestStatsLastUpdateSentinel(t *testing.T) {
	ch := newFakeChannel()
	r, now := newTestReconciler(t, ch, Options{})

	stats := r.GetStats()
	assert.Equal(t, int64(-1), stats.LastUpdateAgeMs)
	assert.Equal(t, domain.Connecting, stats.ConnectionStatus)

	ch.emitEvent(domain.ReservationEvent{Type: domain.EventTableAssigned, TableID: "t1", Timestamp: *now})
	*now = now.Add(250 * time.Millisecond)

	stats = r.GetStats()
	assert.Equal(t, int64(250), stats.LastUpdateAgeMs)
	assert.Equal(t, 1, stats.RecentEventCount)
}

func TestConnectionStatusTracked(t *testing.T) {
	ch := newFakeChannel()
	r, _ := newTestReconciler(t, ch, Options{})

	ch.emitConnection(domain.Connected)
	assert.Equal(t, domain.Connected, r.ConnectionStatus())

	ch.emitConnection(domain.Disconnected)
	assert.Equal(t, domain.Disconnected, r.ConnectionStatus())
}

func TestStopDeregistersAllHandlers(t *testing.T) {
	ch := newFakeChannel()
	r := New(ch, nil, Options{})
	r.Start()
	r.Stop()

	assert.Empty(t, ch.availFns)
	assert.Empty(t, ch.eventFns)
	assert.Empty(t, ch.statusFns)
	assert.Empty(t, ch.connFns)

	// Stop is idempotent.
	r.Stop()
	assert.Empty(t, r.RecentEvents())
}

func TestStartStopTolerateNilUnsubscribes(t *testing.T) {
	ch := newFakeChannel()
	ch.nilUnsubs = true
	r := New(ch, nil, Options{})

	r.Start()
	r.Stop() // must not panic on nil unsubscribe callbacks
}
