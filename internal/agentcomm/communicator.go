package agentcomm

import (
	"context"
	"sync"
	"time"
)

// pollInterval is how far apart successive batch cycles are spaced.
const pollInterval = 5 * time.Second

// Observer receives notifications about batch outcomes for audit
// logging and metrics; both methods must not block.
type Observer interface {
	OnCommit(txnID string, events []Event)
	OnRollback(txnID string, events []Event, err error)
}

// nopObserver is used when no Observer is configured.
type nopObserver struct{}

func (nopObserver) OnCommit(string, []Event)             {}
func (nopObserver) OnRollback(string, []Event, error)    {}

// Communicator owns the event queue and its single draining worker. A
// single mutex guards both the queue and the deduper so addEvent,
// getEvents, requeueEvents, and markEventsFinished never interleave.
type Communicator struct {
	agent    Agent
	observer Observer

	mu       sync.Mutex
	queue    []Event
	dedup    *deduper

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCommunicator builds a Communicator. observer may be nil.
func NewCommunicator(agent Agent, observer Observer) *Communicator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Communicator{
		agent:    agent,
		observer: observer,
		dedup:    newDeduper(),
	}
}

// ActivateNodes, DeactivateNodes, and MovePrimaryNode queue the
// corresponding event for the background worker, deduping against
// identical in-flight or recently-finished events.
func (c *Communicator) ActivateNodes(nodes []string) {
	c.addEvent(Event{Kind: Activate, Nodes: nodes})
}

func (c *Communicator) DeactivateNodes(nodes []string) {
	c.addEvent(Event{Kind: Deactivate, Nodes: nodes})
}

func (c *Communicator) MovePrimaryNode() {
	c.addEvent(Event{Kind: MovePrimary})
}

// EnterStandbyMode replaces the whole queue with a single enter-standby
// event and resets the deduper to that one entry, so no queued
// activate/deactivate/move-primary work runs after it. A repeat call
// while that event is still queued or running is dropped.
func (c *Communicator) EnterStandbyMode() {
	ev := Event{Kind: EnterStandby}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.dedup.tryBegin(ev.Key(), now) {
		return
	}
	c.queue = []Event{ev}
	c.dedup = newDeduper()
	c.dedup.tryBegin(ev.Key(), now)
}

// RaiseAlarm passes straight through to the underlying Agent: alarms
// aren't cluster-change events, so they skip the queue and dedup
// entirely.
func (c *Communicator) RaiseAlarm(msg string) {
	c.agent.RaiseAlarm(msg)
}

func (c *Communicator) addEvent(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dedup.tryBegin(ev.Key(), time.Now()) {
		return
	}
	c.queue = append(c.queue, ev)
}

// getEvents drains the entire current queue as one batch and prunes
// expired dedup entries in the same critical section.
func (c *Communicator) getEvents() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dedup.prune(time.Now())
	batch := c.queue
	c.queue = nil
	return batch
}

// requeueEvents puts a failed batch back at the head of the queue and
// clears their in-flight dedup markers so they are eligible to run
// again on the next cycle (and so a fresh duplicate raised meanwhile
// isn't silently dropped forever).
func (c *Communicator) requeueEvents(batch []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ev := range batch {
		c.dedup.abandon(ev.Key())
	}
	c.queue = append(append([]Event(nil), batch...), c.queue...)
}

// markEventsFinished records each event's key as completed now, so
// identical events raised within the retention window are suppressed.
func (c *Communicator) markEventsFinished(batch []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, ev := range batch {
		c.dedup.finish(ev.Key(), now)
	}
}

// enterStandbyNow truncates the queue and deduper: once this node is
// standing down, any queued activate/deactivate/move-primary work it
// was about to perform as actor is moot.
func (c *Communicator) enterStandbyNow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = nil
	c.dedup = newDeduper()
}

// Start launches the single background worker. Calling Start more than
// once is a programmer error; it is not guarded against because
// Communicator has exactly one owner (the Node Monitor's process).
func (c *Communicator) Start(ctx context.Context) {
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.runner(ctx)
}

// Stop signals the worker to exit and waits for it to do so.
func (c *Communicator) Stop() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	<-c.doneCh
}

func (c *Communicator) runner(ctx context.Context) {
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		cycleStart := time.Now()
		nextPoll := cycleStart.Add(pollInterval)

		batch := c.getEvents()
		if len(batch) == 0 {
			if !c.sleepOrStop(ctx, pollInterval) {
				return
			}
			continue
		}

		if containsStandby(batch) {
			c.runStandbyEvents(ctx, batch)
			if !c.sleepUntil(ctx, nextPoll) {
				return
			}
			continue
		}

		nodesAdded, nodesRemoved := diffNodes(batch)
		if needsTransaction(batch) {
			txnID, desired := c.agent.StartTransaction(ctx, nodesAdded, nodesRemoved)
			if err := c.runBatch(ctx, batch); err != nil {
				c.requeueEvents(batch)
				c.agent.RollbackTransaction(ctx, txnID, desired)
				c.observer.OnRollback(txnID, batch, err)
			} else {
				c.agent.CommitTransaction(ctx, txnID, desired)
				c.markEventsFinished(batch)
				c.observer.OnCommit(txnID, batch)
			}
		}

		if !c.sleepUntil(ctx, nextPoll) {
			return
		}
	}
}

func (c *Communicator) runStandbyEvents(ctx context.Context, batch []Event) {
	for _, ev := range batch {
		if ev.Kind == EnterStandby {
			if err := c.agent.EnterStandbyMode(ctx); err != nil {
				c.agent.RaiseAlarm("enter standby mode failed: " + err.Error())
			}
		}
	}
	c.markEventsFinished(batch)
	c.enterStandbyNow()
}

func (c *Communicator) runBatch(ctx context.Context, batch []Event) error {
	for _, ev := range batch {
		var err error
		switch ev.Kind {
		case Activate:
			err = c.agent.ActivateNodes(ctx, ev.Nodes)
		case Deactivate:
			err = c.agent.DeactivateNodes(ctx, ev.Nodes)
		case MovePrimary:
			err = c.agent.MovePrimaryNode(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Communicator) sleepUntil(ctx context.Context, when time.Time) bool {
	d := time.Until(when)
	if d < 0 {
		d = 0
	}
	return c.sleepOrStop(ctx, d)
}

func (c *Communicator) sleepOrStop(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func containsStandby(batch []Event) bool {
	for _, ev := range batch {
		if ev.Kind == EnterStandby {
			return true
		}
	}
	return false
}

func needsTransaction(batch []Event) bool {
	for _, ev := range batch {
		if ev.NeedsTransaction() {
			return true
		}
	}
	return false
}

func diffNodes(batch []Event) (added, removed []string) {
	for _, ev := range batch {
		switch ev.Kind {
		case Activate:
			added = append(added, ev.Nodes...)
		case Deactivate:
			removed = append(removed, ev.Nodes...)
		}
	}
	return added, removed
}
