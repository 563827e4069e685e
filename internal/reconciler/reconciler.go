// Package reconciler maintains a bounded, recency-aware in-memory view of
// slot availability, table statuses and recent reservation events, fed by a
// realtime channel. Queries are synchronous reads over current state; the
// reconciler never blocks a caller on the broker.
package reconciler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"wheres-my-table/internal/domain"
	"wheres-my-table/internal/logger"
	"wheres-my-table/internal/realtime"
)

// Options tunes throttling, buffering and eviction. Zero values fall back
// to the documented defaults.
type Options struct {
	UpdateThrottle   time.Duration // min gap between applied update mutations (default 1s)
	MaxRecentEvents  int           // bounded event buffer (default 50)
	MaxEntryAge      time.Duration // eviction age for all collections (default 5m)
	EvictionInterval time.Duration // eviction ticker period (default 60s)
}

func (o Options) withDefaults() Options {
	if o.UpdateThrottle <= 0 {
		o.UpdateThrottle = time.Second
	}
	if o.MaxRecentEvents <= 0 {
		o.MaxRecentEvents = 50
	}
	if o.MaxEntryAge <= 0 {
		o.MaxEntryAge = 5 * time.Minute
	}
	if o.EvictionInterval <= 0 {
		o.EvictionInterval = time.Minute
	}
	return o
}

// Stats is the reconciler's self-report for dashboards and health checks.
type Stats struct {
	AvailabilityCount int                     `json:"availability_count"`
	TableStatusCount  int                     `json:"table_status_count"`
	RecentEventCount  int                     `json:"recent_event_count"`
	SubscribedDates   int                     `json:"subscribed_dates"`
	SubscribedTables  int                     `json:"subscribed_tables"`
	ConnectionStatus  domain.ConnectionStatus `json:"connection_status"`
	LastUpdateAgeMs   int64                   `json:"last_update_age_ms"` // -1 until the first update lands
}

// Reconciler owns three keyed collections plus the channel connection
// status. Handlers run on channel consumer goroutines and the eviction
// ticker, so all state sits behind one mutex.
type Reconciler struct {
	ch   realtime.Channel
	lg   *logger.Logger
	opts Options

	mu             sync.Mutex
	availabilities map[string]domain.AvailabilityUpdate // key date|timeSlot
	tableStatuses  map[string]domain.TableStatusUpdate  // key tableID
	recentEvents   []domain.ReservationEvent            // newest first
	connStatus     domain.ConnectionStatus
	lastUpdate     time.Time
	lastApplied    time.Time // shared throttle gate for both update kinds
	dateSubs       map[string]struct{}
	tableSubs      map[string]struct{}

	unsubs   []func()
	stopOnce sync.Once
	stop     chan struct{}
	started  bool

	now func() time.Time // swapped in tests
}

func New(ch realtime.Channel, lg *logger.Logger, opts Options) *Reconciler {
	return &Reconciler{
		ch:             ch,
		lg:             lg,
		opts:           opts.withDefaults(),
		availabilities: make(map[string]domain.AvailabilityUpdate),
		tableStatuses:  make(map[string]domain.TableStatusUpdate),
		connStatus:     domain.Connecting,
		dateSubs:       make(map[string]struct{}),
		tableSubs:      make(map[string]struct{}),
		stop:           make(chan struct{}),
		now:            time.Now,
	}
}

func slotKey(date, timeSlot string) string { return date + "|" + timeSlot }

// Start registers the four channel handlers and launches the eviction
// ticker. A nil unsubscribe from a partial channel implementation is
// tolerated. Call Stop to release everything.
func (r *Reconciler) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.keepUnsub(r.ch.OnAvailabilityUpdate(r.applyAvailability))
	r.keepUnsub(r.ch.OnReservationEvent(r.recordEvent))
	r.keepUnsub(r.ch.OnTableStatusUpdate(r.applyTableStatus))
	r.keepUnsub(r.ch.OnConnectionChange(r.applyConnectionStatus))

	go r.evictLoop()
}

func (r *Reconciler) keepUnsub(unsub func()) {
	if unsub == nil {
		return
	}
	r.mu.Lock()
	r.unsubs = append(r.unsubs, unsub)
	r.mu.Unlock()
}

// Stop deregisters every handler and stops the eviction ticker. Idempotent
// and safe to defer on every exit path.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

func (r *Reconciler) evictLoop() {
	t := time.NewTicker(r.opts.EvictionInterval)
	defer t.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-t.C:
			r.EvictStale()
		}
	}
}

// throttleOpenLocked applies the shared throttle gate: at most one update
// mutation per window. Updates inside the window are dropped, not queued;
// under churn intermediate states are skipped on purpose.
func (r *Reconciler) throttleOpenLocked() bool {
	now := r.now()
	if now.Sub(r.lastApplied) < r.opts.UpdateThrottle {
		return false
	}
	r.lastApplied = now
	return true
}

func (r *Reconciler) applyAvailability(u domain.AvailabilityUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.throttleOpenLocked() {
		return
	}
	r.availabilities[slotKey(u.Date, u.TimeSlot)] = u
	r.lastUpdate = r.now()
}

func (r *Reconciler) applyTableStatus(u domain.TableStatusUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.throttleOpenLocked() {
		return
	}
	r.tableStatuses[u.TableID] = u
	r.lastUpdate = r.now()
}

// recordEvent is never throttled: the event feed stays complete up to
// buffer eviction.
func (r *Reconciler) recordEvent(e domain.ReservationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recentEvents = append([]domain.ReservationEvent{e}, r.recentEvents...)
	if len(r.recentEvents) > r.opts.MaxRecentEvents {
		r.recentEvents = r.recentEvents[:r.opts.MaxRecentEvents]
	}
	r.lastUpdate = r.now()
}

func (r *Reconciler) applyConnectionStatus(s domain.ConnectionStatus) {
	r.mu.Lock()
	r.connStatus = s
	r.mu.Unlock()
	if r.lg != nil {
		r.lg.Info("connection_status_changed", map[string]any{"status": string(s)})
	}
}

// SubscribeToDate is idempotent: one underlying channel subscription per
// distinct date, however many observers ask.
func (r *Reconciler) SubscribeToDate(date string) error {
	r.mu.Lock()
	if _, ok := r.dateSubs[date]; ok {
		r.mu.Unlock()
		return nil
	}
	r.dateSubs[date] = struct{}{}
	r.mu.Unlock()

	if err := r.ch.SubscribeToDate(date); err != nil {
		r.mu.Lock()
		delete(r.dateSubs, date)
		r.mu.Unlock()
		return fmt.Errorf("subscribe to date %s: %w", date, err)
	}
	return nil
}

func (r *Reconciler) UnsubscribeFromDate(date string) error {
	r.mu.Lock()
	if _, ok := r.dateSubs[date]; !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.dateSubs, date)
	r.mu.Unlock()

	if err := r.ch.UnsubscribeFromDate(date); err != nil {
		return fmt.Errorf("unsubscribe from date %s: %w", date, err)
	}
	return nil
}

func (r *Reconciler) SubscribeToTable(tableID string) error {
	r.mu.Lock()
	if _, ok := r.tableSubs[tableID]; ok {
		r.mu.Unlock()
		return nil
	}
	r.tableSubs[tableID] = struct{}{}
	r.mu.Unlock()

	if err := r.ch.SubscribeToTable(tableID); err != nil {
		r.mu.Lock()
		delete(r.tableSubs, tableID)
		r.mu.Unlock()
		return fmt.Errorf("subscribe to table %s: %w", tableID, err)
	}
	return nil
}

// RequestAvailabilityUpdate asks the backend to republish a date. The
// reply, if any, arrives as a regular availability update.
func (r *Reconciler) RequestAvailabilityUpdate(date string) error {
	return r.ch.RequestAvailabilityUpdate(date)
}

// EvictStale purges entries older than MaxEntryAge from all three
// collections. Runs on the ticker and on demand.
func (r *Reconciler) EvictStale() {
	cutoff := r.now().Add(-r.opts.MaxEntryAge)
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, u := range r.availabilities {
		if u.Timestamp.Before(cutoff) {
			delete(r.availabilities, k)
		}
	}
	for k, u := range r.tableStatuses {
		if u.Timestamp.Before(cutoff) {
			delete(r.tableStatuses, k)
		}
	}
	kept := r.recentEvents[:0]
	for _, e := range r.recentEvents {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	r.recentEvents = kept
}

func (r *Reconciler) GetAvailabilityForSlot(date, timeSlot string) (domain.AvailabilityUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.availabilities[slotKey(date, timeSlot)]
	return u, ok
}

func (r *Reconciler) GetTableStatus(tableID string) (domain.TableStatusUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.tableStatuses[tableID]
	return u, ok
}

// GetAvailabilitiesForDate returns every cached slot for a date, ordered
// by time slot.
func (r *Reconciler) GetAvailabilitiesForDate(date string) []domain.AvailabilityUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AvailabilityUpdate, 0)
	for _, u := range r.availabilities {
		if u.Date == date {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeSlot < out[j].TimeSlot })
	return out
}

// IsSlotAvailable answers the booking UI's gate question. Absence of data
// is optimistic: a slot with no cached record reads as available so the UI
// never blocks on missing data. A known non-available table status wins
// over the slot-level record.
func (r *Reconciler) IsSlotAvailable(date, timeSlot string, tableID ...string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(tableID) > 0 && tableID[0] != "" {
		if st, ok := r.tableStatuses[tableID[0]]; ok && st.Status != domain.TableAvailable {
			return false
		}
	}
	if u, ok := r.availabilities[slotKey(date, timeSlot)]; ok {
		return u.Status != domain.SlotFull
	}
	return true
}

func (r *Reconciler) GetRecentEventsForTable(tableID string) []domain.ReservationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ReservationEvent, 0)
	for _, e := range r.recentEvents {
		if e.TableID == tableID {
			out = append(out, e)
		}
	}
	return out
}

// RecentEvents returns the bounded buffer, newest first.
func (r *Reconciler) RecentEvents() []domain.ReservationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ReservationEvent, len(r.recentEvents))
	copy(out, r.recentEvents)
	return out
}

func (r *Reconciler) ConnectionStatus() domain.ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connStatus
}

func (r *Reconciler) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	age := int64(-1)
	if !r.lastUpdate.IsZero() {
		age = r.now().Sub(r.lastUpdate).Milliseconds()
	}
	return Stats{
		AvailabilityCount: len(r.availabilities),
		TableStatusCount:  len(r.tableStatuses),
		RecentEventCount:  len(r.recentEvents),
		SubscribedDates:   len(r.dateSubs),
		SubscribedTables:  len(r.tableSubs),
		ConnectionStatus:  r.connStatus,
		LastUpdateAgeMs:   age,
	}
}
