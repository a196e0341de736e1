package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wuchinator/product-analytics/internal/event"
)

// ErrPassAborted is returned by Run when the context ends mid-pass. No
// snapshot is produced in that case.
var ErrPassAborted = errors.New("aggregation pass aborted")

// checkEvery is how many events Run processes between context checks.
const checkEvery = 1024

// Observer receives every event of a pass, in stream order.
type Observer interface {
	Observe(ev *event.Event)
}

// pass owns all mutable state of one aggregation. It is created per call and
// dropped once the snapshot is built.
type pass struct {
	opts Options

	users     *userTable
	breakdown *breakdown
	funnel    *funnelTracker
	retention *retentionTracker
	sessions  *sessionTracker

	observers []Observer
	events    int
}

func newPass(opts Options) *pass {
	users := newUserTable()
	p := &pass{
		opts:      opts,
		users:     users,
		breakdown: newBreakdown(),
		funnel:    newFunnelTracker(opts.FunnelSteps, users),
		retention: newRetentionTracker(opts.RetentionEvent, opts.RetentionOffsets, users),
		sessions:  newSessionTracker(),
	}
	p.observers = []Observer{p.breakdown, p.funnel, p.retention, p.sessions}
	return p
}

func (p *pass) observe(ev *event.Event) {
	if ev == nil {
		return
	}
	p.events++
	for _, o := range p.observers {
		o.Observe(ev)
	}
}

// Compute folds events, which must be sorted by OccurredAt, into a snapshot.
func Compute(opts Options, events []*event.Event) *Snapshot {
	p := newPass(opts)
	for _, ev := range events {
		p.observe(ev)
	}
	return p.assemble()
}

// Run is Compute with cancellation. The context is polled between batches of
// events; once it is done the pass is discarded and ErrPassAborted returned.
func Run(ctx context.Context, opts Options, events []*event.Event) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPassAborted, err)
	}

	p := newPass(opts)
	for i, ev := range events {
		if i > 0 && i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w after %d events: %w", ErrPassAborted, i, err)
			}
		}
		p.observe(ev)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPassAborted, err)
	}
	return p.assemble(), nil
}
