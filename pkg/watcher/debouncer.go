package watcher

import (
	"context"
	"time"

	"github.com/ritzau/filestatus/pkg/logging"
)

// Debouncer batches rapid file system events to avoid excessive re-analysis.
// A batch is emitted once no event arrived for the quiet period, or when
// maxWait has passed since the first event of the batch.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing. The output channel is
// closed when ctx is canceled or the input channel closes; a pending batch
// is emitted first in the latter case only.
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// pending accumulates the distinct paths of one batch per change type
type pending struct {
	paths map[ChangeType][]string
	seen  map[ChangeType]map[string]bool
	count int
}

func newPending() *pending {
	return &pending{
		paths: make(map[ChangeType][]string),
		seen:  make(map[ChangeType]map[string]bool),
	}
}

func (p *pending) add(event ChangeEvent) {
	if p.seen[event.Type] == nil {
		p.seen[event.Type] = make(map[string]bool)
	}
	for _, path := range event.Paths {
		if !p.seen[event.Type][path] {
			p.seen[event.Type][path] = true
			p.paths[event.Type] = append(p.paths[event.Type], path)
		}
	}
	p.count++
}

// run processes events and applies debouncing logic
func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		batch     = newPending()
		quiet     *time.Timer
		deadline  *time.Timer
		quietC    <-chan time.Time
		deadlineC <-chan time.Time
	)
	defer func() {
		if quiet != nil {
			quiet.Stop()
		}
		if deadline != nil {
			deadline.Stop()
		}
	}()

	flush := func() bool {
		quietC, deadlineC = nil, nil
		if quiet != nil {
			quiet.Stop()
		}
		if deadline != nil {
			deadline.Stop()
			deadline = nil
		}
		if batch.count == 0 {
			return true
		}

		logging.Debug("flushing accumulated events", "count", batch.count)

		// Report changes first, they replace the whole tree
		for _, t := range []ChangeType{ChangeTypeReport, ChangeTypeSource} {
			paths := batch.paths[t]
			if len(paths) == 0 {
				continue
			}
			select {
			case d.output <- ChangeEvent{Type: t, Paths: paths, Timestamp: time.Now()}:
			case <-ctx.Done():
				return false
			}
		}
		batch = newPending()
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			batch.add(event)

			// Reset quiet period timer
			if quiet == nil {
				quiet = time.NewTimer(d.quietPeriod)
			} else {
				quiet.Reset(d.quietPeriod)
			}
			quietC = quiet.C

			// Start max wait timer on first event of a batch
			if deadline == nil {
				deadline = time.NewTimer(d.maxWait)
				deadlineC = deadline.C
			}

		case <-quietC:
			if !flush() {
				return
			}

		case <-deadlineC:
			if !flush() {
				return
			}
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
