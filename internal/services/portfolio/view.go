package portfolio

import (
	"sync"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// View is a live valuation of one portfolio. All recomputation happens
// on a single event-loop goroutine: quote snapshots and control
// messages are processed one at a time, in arrival order, and each
// triggers a full synchronous recompute (cheap, bounded by the
// portfolio's distinct securities). The view owns its quote
// subscription and working state exclusively; nothing is shared across
// views.
type View struct {
	portfolio *models.Portfolio
	positions map[string]*models.Position
	engine    *Engine
	stream    interfaces.QuoteSubscription
	logger    *common.Logger

	commands  chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	mu              sync.RWMutex
	current         *models.Valuation
	live            bool
	displayCurrency string
	observers       map[int]func(*models.Valuation)
	nextObserverID  int
}

// NewView aggregates the ledger, computes the initial buy-in-only
// valuation, and starts the event loop consuming the quote stream.
func NewView(portfolio *models.Portfolio, lookup SecurityLookup, stream interfaces.QuoteSubscription, displayCurrency string, logger *common.Logger) *View {
	v := &View{
		portfolio:       portfolio,
		positions:       Aggregate(portfolio.Trades, lookup),
		engine:          NewEngine(),
		stream:          stream,
		logger:          logger,
		commands:        make(chan func()),
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
		displayCurrency: displayCurrency,
		observers:       make(map[int]func(*models.Valuation)),
		live:            true,
	}

	// First compute runs before the loop starts so Current never
	// returns nil.
	v.recompute(nil)

	go v.run()
	return v
}

// Portfolio returns the ledger source this view was built from.
func (v *View) Portfolio() *models.Portfolio {
	return v.portfolio
}

// Current returns the most recently computed valuation.
func (v *View) Current() *models.Valuation {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Live reports whether the quote subscription is still delivering.
func (v *View) Live() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.live
}

// DisplayCurrency returns the current display currency code.
func (v *View) DisplayCurrency() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.displayCurrency
}

// SetDisplayCurrency changes the display currency and triggers a
// recompute so observers re-render.
func (v *View) SetDisplayCurrency(code string) {
	v.enqueue(func() {
		v.mu.Lock()
		v.displayCurrency = code
		v.mu.Unlock()
		v.recompute(nil)
	})
}

// Subscribe registers an observer invoked with every recomputed
// valuation, from the event loop. The returned func unregisters it.
func (v *View) Subscribe(fn func(*models.Valuation)) (unsubscribe func()) {
	v.mu.Lock()
	id := v.nextObserverID
	v.nextObserverID++
	v.observers[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.observers, id)
		v.mu.Unlock()
	}
}

// Close tears down the quote stream and stops the event loop. The loop
// has exited when Close returns; no observer fires afterwards.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.stream.Close()
		close(v.done)
	})
	<-v.stopped
}

// enqueue hands a control message to the event loop, dropping it if the
// view is already closed.
func (v *View) enqueue(cmd func()) {
	select {
	case v.commands <- cmd:
	case <-v.done:
	}
}

// run is the view's event loop. Snapshots for one subscription arrive
// in order; a closed stream flips the view to not-live and valuation
// continues on last-known prices; re-subscribing is a caller decision.
func (v *View) run() {
	defer close(v.stopped)

	snapshots := v.stream.Snapshots()
	for {
		select {
		case <-v.done:
			return

		case snapshot, ok := <-snapshots:
			if !ok {
				snapshots = nil
				v.setLive(false)
				v.logger.Warn().Str("portfolio", v.portfolio.ID).Msg("Quote stream ended; continuing with last-known prices")
				continue
			}
			v.recompute(snapshot)

		case cmd := <-v.commands:
			cmd()
		}
	}
}

func (v *View) setLive(live bool) {
	v.mu.Lock()
	v.live = live
	v.mu.Unlock()
}

// recompute runs one full valuation pass and publishes the result.
func (v *View) recompute(snapshot models.QuoteSnapshot) {
	valuation := v.engine.Revalue(v.positions, snapshot)

	v.mu.Lock()
	v.current = valuation
	observers := make([]func(*models.Valuation), 0, len(v.observers))
	for _, fn := range v.observers {
		observers = append(observers, fn)
	}
	v.mu.Unlock()

	for _, fn := range observers {
		fn(valuation)
	}
}

// Ensure View implements ValuationView
var _ interfaces.ValuationView = (*View)(nil)
