package netwalker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store is the narrow persistence contract the Discovery Engine writes
// through (§4.7). The concrete implementation lives in the sibling store
// package; the interface is declared here so engine.go has no dependency
// on it (avoiding an import cycle, since store imports netwalker's types).
type Store interface {
	WriteDeviceReport(ctx context.Context, report DeviceReport) error
	WriteSkip(ctx context.Context, ep Endpoint, status DeviceStatus) error
	ExpandStackMembers(ctx context.Context, parentHostname, softwareVersion string, members []StackMember, observedAt time.Time) error
}

// EngineOptions configures collaborators that aren't plain Config values.
type EngineOptions struct {
	Credentials Credentials
	Sink        EventSink
}

// maxDeadlineResets bounds the deadline-reset counter (§4.6): independent
// of the crawl graph, a crawl terminates after at most this many resets.
const maxDeadlineResets = 10

// leakPollInterval and leakThreshold implement the leak-surveillance poll
// from spec.md §4.1: every N processed devices, check the live-session
// count and force a safety purge if it exceeds the threshold.
const (
	leakPollInterval = 10
	leakThreshold    = 5
)

// Engine is the Discovery Engine (§4.6): a bounded-concurrency BFS
// scheduler over a shared frontier with a resettable global deadline.
type Engine struct {
	cfg       Config
	manager   *Manager
	collector *Collector
	filter    *Filter
	store     Store
	creds     Credentials
	sink      EventSink

	mu       sync.Mutex
	frontier []PendingNode
	seen     map[string]struct{}
	inFlight int
	completed int
	totalSeen int

	deadlineAnchor time.Time
	deadlineResets int
	draining       bool

	wake chan struct{}
}

// NewEngine constructs a Discovery Engine from its collaborators. store may
// be nil only in tests that don't exercise persistence.
func NewEngine(cfg Config, manager *Manager, filter *Filter, store Store, opts EngineOptions) *Engine {
	sink := opts.Sink
	if sink == nil {
		sink = NopEventSink{}
	}
	return &Engine{
		cfg:       cfg,
		manager:   manager,
		collector: NewCollector(manager, cfg),
		filter:    filter,
		store:     store,
		creds:     opts.Credentials,
		sink:      sink,
		seen:      make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) workerLimit() int {
	if e.cfg.Discovery.ConcurrentConnections <= 0 {
		return 5
	}
	return e.cfg.Discovery.ConcurrentConnections
}

// enqueueLocked appends node to the frontier unless its identity key has
// already been seen (either dispatched or already queued). Must be called
// with e.mu held. Returns whether the node was actually enqueued.
func (e *Engine) enqueueLocked(node PendingNode) bool {
	key := node.IdentityKey()
	if key != "" {
		if _, ok := e.seen[key]; ok {
			return false
		}
		e.seen[key] = struct{}{}
	}
	e.frontier = append(e.frontier, node)
	e.totalSeen++
	return true
}

// Run drives the BFS crawl to completion: seeds the frontier, then loops
// dispatching bounded-concurrency workers until the frontier drains (or
// the global deadline, extended up to 10 times, is exceeded).
func (e *Engine) Run(ctx context.Context, seeds []PendingNode) {
	e.mu.Lock()
	e.deadlineAnchor = time.Now()
	for _, sd := range seeds {
		e.enqueueLocked(sd)
	}
	e.mu.Unlock()

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workerLimit())

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		e.mu.Lock()
		if e.inFlight == 0 && (len(e.frontier) == 0 || e.draining) {
			e.mu.Unlock()
			break
		}
		if !e.draining && time.Since(e.deadlineAnchor) > e.cfg.DiscoveryDeadline() {
			e.draining = true
			emit(e.sink, Event{Kind: EventDrainMode, Detail: "deadline_reached"})
		}
		if ctx.Err() != nil {
			e.draining = true
		}

		var dispatch []PendingNode
		if !e.draining {
		dispatchLoop:
			for len(e.frontier) > 0 {
				select {
				case sem <- struct{}{}:
					node := e.frontier[0]
					e.frontier = e.frontier[1:]
					e.inFlight++
					dispatch = append(dispatch, node)
				default:
					break dispatchLoop
				}
			}
		}
		e.mu.Unlock()

		for _, node := range dispatch {
			wg.Add(1)
			go func(n PendingNode) {
				defer wg.Done()
				defer func() { <-sem }()
				e.runWorker(ctx, n)
				e.mu.Lock()
				e.inFlight--
				e.completed++
				pollLeak := e.completed%leakPollInterval == 0
				e.mu.Unlock()
				e.emitProgress()
				if pollLeak {
					e.pollSessionLeak()
				}
				e.signal()
			}(node)
		}

		if len(dispatch) == 0 {
			if ctx.Err() != nil {
				<-ticker.C
			} else {
				select {
				case <-e.wake:
				case <-ticker.C:
				case <-ctx.Done():
				}
			}
		}
	}

	wg.Wait()

	if ctx.Err() != nil && e.manager != nil {
		e.manager.CloseAll(30 * time.Second)
	}
}

func (e *Engine) pollSessionLeak() {
	if e.manager == nil {
		return
	}
	if e.manager.TotalLiveSessions() > leakThreshold {
		emit(e.sink, Event{Kind: EventLeakPurge, Detail: "live session count exceeded threshold"})
		e.manager.CloseAll(30 * time.Second)
	}
}

func (e *Engine) emitProgress() {
	e.mu.Lock()
	completed := e.completed
	total := e.totalSeen
	remaining := len(e.frontier)
	e.mu.Unlock()

	percent := 0.0
	if total > 0 {
		percent = float64(completed) / float64(total) * 100
	}
	emit(e.sink, Event{
		Kind:                EventProgress,
		Completed:           completed,
		TotalSeenSoFar:      total,
		PercentComplete:     percent,
		RemainingInFrontier: remaining,
	})
}

// maybeResetDeadline extends the global deadline when remaining time is
// below 20% and fewer than 10 resets have been granted (§4.6).
func (e *Engine) maybeResetDeadline() {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := e.cfg.DiscoveryDeadline()
	remaining := total - time.Since(e.deadlineAnchor)
	threshold := time.Duration(float64(total) * 0.2)
	if remaining < threshold && e.deadlineResets < maxDeadlineResets {
		e.deadlineAnchor = time.Now()
		e.deadlineResets++
		emit(e.sink, Event{Kind: EventDeadlineReset, DeadlineResets: e.deadlineResets, MaxResets: maxDeadlineResets})
	}
}

func capabilityStrings(caps []Capability) []string {
	if len(caps) == 0 {
		return nil
	}
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

func (e *Engine) writeStatus(ctx context.Context, ep Endpoint, status DeviceStatus) {
	if e.store != nil {
		if err := e.store.WriteSkip(ctx, ep, status); err != nil {
			emit(e.sink, Event{Kind: EventStoreError, Detail: err.Error()})
		}
	}
	emit(e.sink, Event{
		Kind:     EventDeviceStatus,
		Hostname: CleanHostname(firstNonEmpty(ep.HostnameHint, ep.Host)),
		Status:   status.Kind,
		Reason:   status.Reason,
	})
}

// runWorker executes one PendingNode's full lifecycle (§4.6 step 4): filter,
// depth check, open, collect, post-connect filter, store, re-enqueue
// neighbors.
func (e *Engine) runWorker(ctx context.Context, node PendingNode) {
	ep := node.Endpoint

	if excl, reason := e.filter.ShouldExclude(firstNonEmpty(ep.HostnameHint, ep.Host), ep.PrimaryIP, "", nil); excl {
		e.writeStatus(ctx, ep, DeviceStatus{Kind: StatusFiltered, Reason: reason})
		return
	}

	if node.Depth > e.cfg.Discovery.MaxDepth {
		reason := fmt.Sprintf(ReasonDepthExceededFmt, node.Depth, e.cfg.Discovery.MaxDepth)
		e.writeStatus(ctx, ep, DeviceStatus{Kind: StatusSkipped, Reason: reason})
		return
	}

	connectOpts := ConnectOptions{
		SSHPort:         e.cfg.Connection.SSHPort,
		TelnetPort:      e.cfg.Connection.TelnetPort,
		PreferredMethod: e.cfg.Connection.PreferredMethod,
		ConnectTimeout:  e.cfg.ConnectTimeout(),
	}
	sess, err := e.manager.Open(ctx, ep, e.creds, connectOpts)
	if err != nil {
		e.writeStatus(ctx, ep, DeviceStatus{Kind: StatusConnectFailed, Reason: ConnectFailedReason(classifyExecError(err))})
		return
	}
	defer e.manager.Close(sess)

	report, err := e.collector.Collect(ctx, sess, ep)
	if err != nil {
		e.writeStatus(ctx, ep, DeviceStatus{Kind: StatusCollectFailed, Reason: CollectFailedReason(classifyExecError(err))})
		return
	}

	if excl, reason := e.filter.ShouldExclude(report.Hostname, report.PrimaryIP, report.Platform, capabilityStrings(node.Capabilities)); excl {
		e.writeStatus(ctx, ep, DeviceStatus{Kind: StatusFiltered, Reason: reason})
		return
	}

	if e.store != nil {
		if err := e.store.WriteDeviceReport(ctx, *report); err != nil {
			emit(e.sink, Event{Kind: EventStoreError, Detail: err.Error()})
		}
		if e.cfg.Stack.ExpandMembers && len(report.StackMembers) > 0 {
			if err := e.store.ExpandStackMembers(ctx, report.Hostname, report.SoftwareVersion, report.StackMembers, report.CollectedAt); err != nil {
				emit(e.sink, Event{Kind: EventStoreError, Detail: err.Error()})
			}
		}
	}
	emit(e.sink, Event{Kind: EventDeviceStatus, Hostname: report.Hostname, Status: StatusConnected})

	e.enqueueNeighbors(ctx, node, report)
}

// enqueueNeighbors implements §4.6 step g: enqueue each unvisited neighbor
// at depth+1, writing a skip row for any that exceed max_depth instead.
func (e *Engine) enqueueNeighbors(ctx context.Context, node PendingNode, report *DeviceReport) {
	type skip struct {
		ep     Endpoint
		reason string
	}
	var skips []skip
	newlyQueued := 0

	e.mu.Lock()
	for _, nb := range report.Neighbors {
		dialHost := nb.RemoteHostname
		if IsRoutableIP(nb.RemoteIP) {
			dialHost = nb.RemoteIP
		}
		nbEp := Endpoint{Host: dialHost, PrimaryIP: nb.RemoteIP, HostnameHint: nb.RemoteHostname}
		childDepth := node.Depth + 1

		key := IdentityKey(nbEp.HostnameHint, nbEp.PrimaryIP)
		if key != "" {
			if _, ok := e.seen[key]; ok {
				continue
			}
		}

		if childDepth > e.cfg.Discovery.MaxDepth {
			skips = append(skips, skip{ep: nbEp, reason: fmt.Sprintf(ReasonDepthExceededFmt, childDepth, e.cfg.Discovery.MaxDepth)})
			if key != "" {
				e.seen[key] = struct{}{}
			}
			continue
		}

		method := DiscoveryCDP
		if nb.Protocol == ProtocolLLDP {
			method = DiscoveryLLDP
		}
		pn := PendingNode{Endpoint: nbEp, Depth: childDepth, ParentKey: node.IdentityKey(), DiscoveryMethod: method, Capabilities: nb.Capabilities}
		if e.enqueueLocked(pn) {
			newlyQueued++
		}
	}
	e.mu.Unlock()

	for _, sk := range skips {
		e.writeStatus(ctx, sk.ep, DeviceStatus{Kind: StatusSkipped, Reason: sk.reason})
	}

	if newlyQueued > 0 {
		e.maybeResetDeadline()
		e.signal()
	}
}
