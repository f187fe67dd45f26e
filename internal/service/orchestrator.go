package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/lock"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
	"rollcall/internal/network"
	"rollcall/internal/remote"
	"rollcall/internal/repository"
	"rollcall/internal/sink"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/constraints"
	"rollcall/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	LastResolutionCheckKey = "last_resolution_check"
	reportTimeout          = 10 * time.Second
)

// EventListener receives sync progress events.
type EventListener func(ev v1.Event)

// OrchestratorDeps are the collaborators of a sync run. Locker, Reporter,
// Deduper, Invalidator and Observer are optional.
type OrchestratorDeps struct {
	Queue       repository.QueueStore
	Failed      *FailedSet
	Settings    repository.KV
	Remote      Submitter
	Feed        ResolutionFeed
	Signal      network.Status
	Locker      lock.Locker
	Reporter    sink.Reporter
	Deduper     Deduper
	Invalidator Invalidator
	Observer    metrics.SyncObserver
}

// Orchestrator replays the durable queue against the remote service.
// Only one run is active at a time; concurrent triggers are skipped.
type Orchestrator struct {
	deps OrchestratorDeps
	cfg  config.SyncConfig

	syncing atomic.Bool
	limiter *rate.Limiter

	listenersMu sync.Mutex
	listeners   []listenerEntry
	nextID      int64

	// settle timer state
	netMu      sync.Mutex
	lastOnline bool
	settle     *time.Timer
	trigger    chan struct{}

	// ids the remote accepted but the queue could not mark synced
	acceptedMu sync.Mutex
	accepted   map[int64]struct{}

	reports sync.WaitGroup
	now     func() time.Time
}

type listenerEntry struct {
	id int64
	fn EventListener
}

func NewOrchestrator(deps OrchestratorDeps, cfg config.SyncConfig) *Orchestrator {
	if deps.Observer == nil {
		deps.Observer = metrics.Nop{}
	}
	if deps.Deduper == nil {
		deps.Deduper = NewLocalDeduper()
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = time.Hour
	}

	o := &Orchestrator{
		deps:    deps,
		cfg:     cfg,
		trigger:  make(chan struct{}, 1),
		accepted: make(map[int64]struct{}),
		now:      time.Now,
	}
	if cfg.DispatchRPS > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRPS), 1)
	}
	return o
}

// Subscribe registers fn for progress events. fn runs on the syncing
// goroutine; a panic in it is logged and does not stop the run.
func (o *Orchestrator) Subscribe(fn EventListener) func() {
	o.listenersMu.Lock()
	o.nextID++
	id := o.nextID
	o.listeners = append(o.listeners, listenerEntry{id: id, fn: fn})
	o.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.listenersMu.Lock()
			defer o.listenersMu.Unlock()
			for i, l := range o.listeners {
				if l.id == id {
					o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (o *Orchestrator) emit(ev v1.Event) {
	o.listenersMu.Lock()
	ls := make([]listenerEntry, len(o.listeners))
	copy(ls, o.listeners)
	o.listenersMu.Unlock()

	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("sync listener panicked", zap.Any("panic", r), zap.String("kind", string(ev.Kind)))
				}
			}()
			l.fn(ev)
		}()
	}
}

// Run drives the automatic triggers until ctx is done: a settled
// offline-to-online transition and the periodic timer while online.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	unsubscribe := o.deps.Signal.Subscribe(o.onNetwork)
	defer unsubscribe()
	defer o.stopSettle()

	logger.Info("sync orchestrator started",
		zap.Duration("interval", o.cfg.Interval),
		zap.Duration("settle_delay", o.cfg.SettleDelay),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("sync orchestrator stopped")
			return
		case <-o.trigger:
			o.runTriggered(ctx, "reconnect")
		case <-ticker.C:
			if o.deps.Signal.Status() {
				o.runTriggered(ctx, "interval")
			}
		}
	}
}

func (o *Orchestrator) runTriggered(ctx context.Context, reason string) {
	res, err := o.SyncNow(ctx)
	if err != nil {
		logger.Error("sync run failed", zap.String("trigger", reason), zap.Error(err))
		return
	}
	if res.Skipped || res.Offline {
		logger.Debug("sync run not started", zap.String("trigger", reason),
			zap.Bool("skipped", res.Skipped), zap.Bool("offline", res.Offline))
	}
}

// onNetwork arms a single settle timer on every false-to-true transition.
// Any later transition inside the window resets it, so a flapping link
// yields one run from the final state.
func (o *Orchestrator) onNetwork(online bool) {
	o.deps.Observer.SetOnline(online)

	o.netMu.Lock()
	defer o.netMu.Unlock()

	if online == o.lastOnline {
		return
	}
	o.lastOnline = online

	if o.settle != nil {
		o.settle.Stop()
		o.settle = nil
	}
	if online {
		o.settle = time.AfterFunc(o.cfg.SettleDelay, o.kick)
	}
}

func (o *Orchestrator) kick() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) stopSettle() {
	o.netMu.Lock()
	defer o.netMu.Unlock()
	if o.settle != nil {
		o.settle.Stop()
		o.settle = nil
	}
}

// Syncing reports whether a run is in progress.
func (o *Orchestrator) Syncing() bool {
	return o.syncing.Load()
}

func (o *Orchestrator) FailedIDs() []int64 {
	return o.deps.Failed.IDs()
}

// RetryAll clears the failed set so the next run attempts every entry again.
func (o *Orchestrator) RetryAll(ctx context.Context) error {
	if err := o.deps.Failed.Clear(ctx); err != nil {
		return err
	}
	logger.Info("failed set cleared", zap.String("actor", ActorName(ctx)))
	return nil
}

// Flush waits for in-flight error reports.
func (o *Orchestrator) Flush() {
	o.reports.Wait()
}

// SyncNow performs one run. The error is non-nil only when the queue
// could not be read.
func (o *Orchestrator) SyncNow(ctx context.Context) (v1.SyncResult, error) {
	if !o.syncing.CompareAndSwap(false, true) {
		o.deps.Observer.ObserveRun(metrics.RunSkipped, 0)
		return v1.SyncResult{Skipped: true}, nil
	}
	defer o.syncing.Store(false)

	if !o.deps.Signal.Status() {
		o.deps.Observer.ObserveRun(metrics.RunOffline, 0)
		return v1.SyncResult{Offline: true}, nil
	}

	if o.deps.Locker != nil {
		unlock, ok, err := o.deps.Locker.TryLock(ctx)
		if err != nil {
			logger.Error("failed to acquire sync lock", zap.Error(err))
			o.deps.Observer.ObserveRun(metrics.RunSkipped, 0)
			return v1.SyncResult{Skipped: true}, nil
		}
		if !ok {
			logger.Debug("sync skipped, another agent holds the lock")
			o.deps.Observer.ObserveRun(metrics.RunSkipped, 0)
			return v1.SyncResult{Skipped: true}, nil
		}
		defer unlock()
	}

	started := o.now()
	res, err := o.run(ctx)
	if err != nil {
		o.deps.Observer.ObserveRun(metrics.RunFailed, o.now().Sub(started))
		o.emit(v1.Event{Kind: constraints.EventError, Error: err.Error()})
		return res, err
	}
	o.deps.Observer.ObserveRun(metrics.RunCompleted, o.now().Sub(started))
	o.emit(v1.Event{Kind: constraints.EventComplete, Result: &res})
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context) (v1.SyncResult, error) {
	res := v1.SyncResult{Errors: []v1.SyncError{}}

	o.purgeResolved(ctx)

	pending, err := o.deps.Queue.ListPending(ctx)
	if err != nil {
		return res, fmt.Errorf("list pending: %w", err)
	}

	delivered := o.settleAccepted(ctx, pending)

	var dispatchable []int
	for i, sub := range pending {
		if _, ok := delivered[sub.ID]; ok {
			continue
		}
		if !o.deps.Failed.Contains(sub.ID) {
			dispatchable = append(dispatchable, i)
		}
	}
	total := len(dispatchable)

	if total > 0 {
		logger.Info("sync run started", zap.Int("pending", len(pending)), zap.Int("dispatchable", total))
	}

	for n, i := range dispatchable {
		sub := pending[i]

		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				// cancelled, the rest waits for the next run
				break
			}
		}

		payload, err := sub.Decode()
		if err != nil {
			o.recordRejection(ctx, &res, sub.ID, v1.AttendancePayload{}, fmt.Errorf("corrupt queued payload: %w", err))
			continue
		}
		payload.Method = constraints.MethodOfflineSync

		_, err = o.deps.Remote.SaveAttendance(ctx, payload)
		if err == nil {
			o.recordSuccess(ctx, &res, sub.ID, payload, n+1, total)
			continue
		}

		if remote.IsNetworkError(err) {
			res.Failed++
			res.Errors = append(res.Errors, v1.SyncError{ID: sub.ID, Error: err.Error()})
			o.deps.Observer.ObserveDispatch(metrics.OutcomeNetwork)
			logger.Warn("remote unreachable, halting sync run",
				zap.Int64("id", sub.ID),
				zap.Int("remaining", total-n-1),
				zap.Error(err),
			)
			o.emit(v1.Event{Kind: constraints.EventError, ID: sub.ID, ClassID: payload.ClassID, Current: n + 1, Total: total, Error: err.Error()})
			break
		}

		o.recordRejection(ctx, &res, sub.ID, payload, err)
	}

	if n, err := o.deps.Queue.PruneSyncedOlderThan(ctx, o.cfg.Retention); err != nil {
		logger.Warn("failed to prune synced entries", zap.Error(err))
	} else if n > 0 {
		logger.Info("pruned synced entries", zap.Int64("count", n))
	}

	if count, err := o.deps.Queue.CountPending(ctx); err == nil {
		o.deps.Observer.SetPending(count)
	}

	if total > 0 {
		logger.Info("sync run finished", zap.Int("success", res.Success), zap.Int("failed", res.Failed))
	}
	return res, nil
}

func (o *Orchestrator) recordSuccess(ctx context.Context, res *v1.SyncResult, id int64, p v1.AttendancePayload, current, total int) {
	if err := o.deps.Queue.MarkSynced(ctx, id); err != nil {
		// the remote already has it; later runs retry the mark, never the send
		logger.Error("failed to mark submission synced", zap.Int64("id", id), zap.Error(err))
		o.acceptedMu.Lock()
		o.accepted[id] = struct{}{}
		o.acceptedMu.Unlock()
	}
	res.Success++
	o.deps.Observer.ObserveDispatch(metrics.OutcomeSuccess)
	o.emit(v1.Event{Kind: constraints.EventProgress, ID: id, ClassID: p.ClassID, Current: current, Total: total})

	if o.deps.Invalidator != nil {
		if err := o.deps.Invalidator.Invalidate(ctx, p.ClassID); err != nil {
			logger.Warn("failed to invalidate class projection", zap.Int64("class_id", p.ClassID), zap.Error(err))
		}
	}
}

// settleAccepted retries the synced mark for submissions the remote already
// took and returns every such id still pending, so none of them is sent twice.
func (o *Orchestrator) settleAccepted(ctx context.Context, pending []model.QueuedSubmission) map[int64]struct{} {
	o.acceptedMu.Lock()
	defer o.acceptedMu.Unlock()
	if len(o.accepted) == 0 {
		return nil
	}

	stillPending := make(map[int64]struct{}, len(pending))
	for _, sub := range pending {
		stillPending[sub.ID] = struct{}{}
	}

	delivered := make(map[int64]struct{}, len(o.accepted))
	for id := range o.accepted {
		if _, ok := stillPending[id]; !ok {
			// deleted by the operator or marked elsewhere
			delete(o.accepted, id)
			continue
		}
		delivered[id] = struct{}{}
		if err := o.deps.Queue.MarkSynced(ctx, id); err != nil {
			logger.Warn("retrying synced mark failed", zap.Int64("id", id), zap.Error(err))
			continue
		}
		delete(o.accepted, id)
	}
	return delivered
}

func (o *Orchestrator) recordRejection(ctx context.Context, res *v1.SyncResult, id int64, p v1.AttendancePayload, cause error) {
	res.Failed++
	res.Errors = append(res.Errors, v1.SyncError{ID: id, Error: cause.Error()})
	o.deps.Observer.ObserveDispatch(metrics.OutcomeRejected)
	logger.Warn("queued submission rejected", zap.Int64("id", id), zap.Int64("class_id", p.ClassID), zap.Error(cause))

	if err := o.deps.Failed.Add(ctx, id); err != nil {
		logger.Error("failed to persist failed set", zap.Int64("id", id), zap.Error(err))
	}
	o.emit(v1.Event{Kind: constraints.EventError, ID: id, ClassID: p.ClassID, Error: cause.Error()})
	o.report(ctx, id, p, cause)
}

// report sends one error log per submission per dedup window, off the run's path.
func (o *Orchestrator) report(ctx context.Context, id int64, p v1.AttendancePayload, cause error) {
	if o.deps.Reporter == nil {
		return
	}
	key := fmt.Sprintf("%d|%s|%s|%d", p.ClassID, p.Date, p.SessionType, id)
	if !o.deps.Deduper.First(ctx, key, o.cfg.DedupWindow) {
		return
	}

	rec := v1.ErrorLogRecord{
		ClassID:      p.ClassID,
		Date:         p.Date,
		SessionType:  p.SessionType,
		Error:        cause.Error(),
		SubmissionID: id,
		Online:       o.deps.Signal.Status(),
		Records:      p.Records,
		Actor:        ActorName(ctx),
	}

	o.reports.Add(1)
	go func() {
		defer o.reports.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		defer cancel()
		if err := o.deps.Reporter.Report(rctx, rec); err != nil {
			logger.Warn("failed to report sync error", zap.Int64("id", id), zap.Error(err))
		}
	}()
}

// purgeResolved drops entries an administrator resolved out of band. The
// cursor only advances after a successful poll.
func (o *Orchestrator) purgeResolved(ctx context.Context) {
	if o.deps.Feed == nil {
		return
	}

	since := o.lastResolutionCheck(ctx)
	polledAt := o.now().UnixMilli()

	ids, err := o.deps.Feed.FetchResolved(ctx, since)
	if err != nil {
		logger.Warn("resolution feed unavailable, skipping cleanup", zap.Error(err))
		return
	}

	if len(ids) > 0 {
		for _, id := range ids {
			if err := o.deps.Queue.Delete(ctx, id); err != nil {
				logger.Warn("failed to delete resolved submission", zap.Int64("id", id), zap.Error(err))
			}
		}
		if err := o.deps.Failed.Remove(ctx, ids...); err != nil {
			logger.Warn("failed to persist failed set after resolution", zap.Error(err))
		}
		logger.Info("resolved submissions purged", zap.Int("count", len(ids)))
	}

	if o.deps.Settings != nil {
		if err := o.deps.Settings.Set(ctx, LastResolutionCheckKey, strconv.FormatInt(polledAt, 10)); err != nil {
			logger.Warn("failed to persist resolution cursor", zap.Error(err))
		}
	}
}

func (o *Orchestrator) lastResolutionCheck(ctx context.Context) int64 {
	if o.deps.Settings == nil {
		return 0
	}
	raw, ok, err := o.deps.Settings.Get(ctx, LastResolutionCheckKey)
	if err != nil || !ok {
		return 0
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return since
}
