// Package search runs debounced security-directory searches. Rapid
// query revisions collapse into one execution: only a query that stays
// unrevised for the debounce interval runs, and only its result is
// published.
package search

import (
	"context"
	"sync"
	"time"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// Result pairs an executed query with its matches, so consumers can
// discard results for text they have already moved past.
type Result struct {
	Query      string
	Securities []models.Security
}

type query struct {
	text  string
	reply chan []models.Security // nil for fire-and-forget
}

// Debouncer serializes query revisions through a single timer-driven
// loop. One Debouncer serves one search box.
type Debouncer struct {
	refdata  interfaces.ReferenceDataService
	interval time.Duration
	logger   *common.Logger

	queries chan query
	results chan Result

	cancel    context.CancelFunc
	closeOnce sync.Once
	stopped   chan struct{}
}

// NewDebouncer starts the debounce loop. interval <= 0 falls back to
// the configured default.
func NewDebouncer(refdata interfaces.ReferenceDataService, interval time.Duration, logger *common.Logger) *Debouncer {
	if interval <= 0 {
		interval = common.DefaultSearchDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Debouncer{
		refdata:  refdata,
		interval: interval,
		logger:   logger,
		queries:  make(chan query),
		results:  make(chan Result, 1),
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	go d.run(ctx)
	return d
}

// Query submits the latest text without waiting for a result. A pending
// query that has not fired yet is discarded; the clock restarts for
// this one.
func (d *Debouncer) Query(text string) {
	select {
	case d.queries <- query{text: text}:
	case <-d.stopped:
	}
}

// Search submits text and waits for its execution. Returns executed ==
// false when a newer query superseded this one before the window
// elapsed, or when the context ended first.
func (d *Debouncer) Search(ctx context.Context, text string) (securities []models.Security, executed bool) {
	reply := make(chan []models.Security, 1)

	select {
	case d.queries <- query{text: text, reply: reply}:
	case <-d.stopped:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}

	select {
	case securities, executed = <-reply:
		return securities, executed
	case <-ctx.Done():
		return nil, false
	}
}

// Results delivers one Result per executed search. Slow consumers only
// ever see the freshest result: stale ones are dropped, not queued.
func (d *Debouncer) Results() <-chan Result {
	return d.results
}

// Close discards any pending query and stops the loop.
func (d *Debouncer) Close() {
	d.closeOnce.Do(d.cancel)
	<-d.stopped
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.stopped)

	timer := time.NewTimer(d.interval)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false
	var pending query

	supersede := func() {
		if pending.reply != nil {
			close(pending.reply)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if armed {
				timer.Stop()
			}
			supersede()
			return

		case q := <-d.queries:
			if armed && !timer.Stop() {
				<-timer.C
			}
			supersede()
			pending = q
			timer.Reset(d.interval)
			armed = true

		case <-timer.C:
			armed = false
			securities := d.refdata.SearchSecurities(ctx, pending.text)
			if pending.reply != nil {
				pending.reply <- securities
				pending.reply = nil
			}
			d.publish(Result{Query: pending.text, Securities: securities})
		}
	}
}

// publish replaces any unconsumed result with the fresh one.
func (d *Debouncer) publish(result Result) {
	for {
		select {
		case d.results <- result:
			return
		default:
			select {
			case <-d.results:
			default:
			}
		}
	}
}
