// Package ingest consumes the asynchronous verdict event stream, persists
// each event, and drives the aggregation engine for the owning case.
//
// Delivery is at-least-once: every event is acknowledged individually after a
// successful persist-and-recompute, transient failures are retried with
// backoff, and events that keep failing (or never validate) land in the dead
// letter table with their reason. Events are sharded onto workers by a hash
// of the case key, so all work for one case runs on one goroutine — this is
// what serializes recompute-and-snapshot-write per case.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/sirupsen/logrus"

	"github.com/stygian-io/styx/internal/aggregate"
	"github.com/stygian-io/styx/internal/logger"
	"github.com/stygian-io/styx/internal/metrics"
	"github.com/stygian-io/styx/internal/retry"
	"github.com/stygian-io/styx/internal/services"
)

// ErrPipelineClosed is returned by Publish after Shutdown.
var ErrPipelineClosed = errors.New("ingest pipeline closed")

const retryBaseDelay = 100 * time.Millisecond

// Pipeline is the bounded, sharded verdict event queue.
type Pipeline struct {
	shards []chan VerdictEvent

	cases       *services.CaseService
	deadLetters *services.DeadLetterService
	engine      *aggregate.Engine

	maxAttempts int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *logrus.Entry
}

// NewPipeline sizes the shard channels but starts nothing; call Start.
func NewPipeline(cases *services.CaseService, deadLetters *services.DeadLetterService, engine *aggregate.Engine, workers, queueSize, maxAttempts int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pipeline{
		shards:      make([]chan VerdictEvent, workers),
		cases:       cases,
		deadLetters: deadLetters,
		engine:      engine,
		maxAttempts: maxAttempts,
		ctx:         ctx,
		cancel:      cancel,
		log:         logger.WithComponent("ingest"),
	}
	for i := range p.shards {
		p.shards[i] = make(chan VerdictEvent, queueSize)
	}
	return p
}

// Start launches one worker goroutine per shard.
func (p *Pipeline) Start() {
	for i := range p.shards {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Publish enqueues one verdict event on its case's shard. It blocks while
// the shard buffer is full and fails once ctx is cancelled or the pipeline
// shuts down; the caller decides whether a failed publish is retried.
func (p *Pipeline) Publish(ctx context.Context, evt VerdictEvent) error {
	shard := p.shards[p.shardFor(evt.CaseKey())]

	select {
	case shard <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPipelineClosed
	}
}

// Shutdown stops the workers and waits for in-flight events to finish
// processing. Queued events still in the shard buffers are dropped; durable
// state is only ever acknowledged per event, so nothing half-written is lost.
func (p *Pipeline) Shutdown() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) shardFor(caseKey string) int {
	return int(xxhash.ChecksumString32(caseKey)) % len(p.shards)
}

func (p *Pipeline) worker(n int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case evt := <-p.shards[n]:
			p.process(evt)
		}
	}
}

// process is the per-event acknowledgment unit: validate, persist, recompute.
func (p *Pipeline) process(evt VerdictEvent) {
	if err := evt.Validate(); err != nil {
		p.log.WithField("case_key", evt.CaseKey()).Warnf("rejected event: %v", err)
		p.deadLetter(evt, err, 0)
		return
	}

	op := func() error {
		c, err := p.cases.UpsertCase(evt.Zone, evt.IP, evt.ASN, evt.Country, evt.TS)
		if err != nil {
			return fmt.Errorf("upsert case: %w", err)
		}
		if err := p.cases.AppendEvent(c.ID, evt.Row()); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		if _, err := p.engine.Recompute(c); err != nil {
			return fmt.Errorf("recompute case %s: %w", c.Key, err)
		}
		return nil
	}

	onRetry := func(err error) {
		metrics.IncIngestRetry()
		p.log.WithField("case_key", evt.CaseKey()).Warnf("ingest retry: %v", err)
	}

	if err := retry.Do(p.ctx, p.maxAttempts, retryBaseDelay, op, onRetry); err != nil {
		p.log.WithField("case_key", evt.CaseKey()).Errorf("ingest failed permanently: %v", err)
		p.deadLetter(evt, err, p.maxAttempts)
		return
	}

	metrics.IncEventIngested()
}

func (p *Pipeline) deadLetter(evt VerdictEvent, cause error, attempts int) {
	metrics.IncDeadLetter()

	payload, err := json.Marshal(evt)
	if err != nil {
		payload = []byte(fmt.Sprintf("unmarshalable event for %s", evt.CaseKey()))
	}
	if err := p.deadLetters.Create(string(payload), cause.Error(), attempts); err != nil {
		// Last resort: the event exists only in the log line now.
		p.log.WithField("case_key", evt.CaseKey()).
			Errorf("dead letter write failed, event lost: %v (cause: %v)", err, cause)
	}
}

// DrainDeadLetters replays up to limit parked events through the normal
// processing path. Letters that fail again simply produce a fresh row, so a
// poisoned event cannot wedge the drain. Intended to run from a scheduler.
func (p *Pipeline) DrainDeadLetters(limit int) (int, error) {
	letters, err := p.deadLetters.ListPending(limit)
	if err != nil {
		return 0, fmt.Errorf("list dead letters: %w", err)
	}

	replayed := 0
	for _, dl := range letters {
		var evt VerdictEvent
		if err := json.Unmarshal([]byte(dl.Payload), &evt); err != nil {
			p.log.WithField("dead_letter", dl.ID).Warnf("unreadable payload, leaving parked: %v", err)
			continue
		}

		// Validation failures are permanent; replaying them would only mint
		// identical letters forever.
		if err := evt.Validate(); err == nil {
			p.process(evt)
			replayed++
		}

		if err := p.deadLetters.MarkRetried(dl.ID, time.Now()); err != nil {
			return replayed, fmt.Errorf("mark dead letter %d: %w", dl.ID, err)
		}
	}
	return replayed, nil
}
