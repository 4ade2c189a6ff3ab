package guard

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"coolgate/internal/config"
	"coolgate/internal/events"
	"coolgate/internal/gate"
	"coolgate/internal/metrics"
	"coolgate/internal/model"
	"coolgate/internal/storage"
)

// Guard composes the cooldown gate with its collaborators: structured
// logging, the in-memory event ring, per-identity stats, optional SQL
// persistence and an optional kafka publisher. Hosts call Protect
// around their state-changing entry points.
type Guard struct {
	logger    *slog.Logger
	gate      *gate.Gate
	events    *events.Store
	stats     *metrics.Store
	store     storage.Store
	publisher *events.Publisher
	exempt    atomic.Value
	interval  uint32
	initiator string
}

func New(cfg *config.Config, clock gate.Clock, logger *slog.Logger, eventsStore *events.Store, statsStore *metrics.Store, store storage.Store, publisher *events.Publisher) *Guard {
	g := &Guard{
		logger:    logger,
		events:    eventsStore,
		stats:     statsStore,
		store:     store,
		publisher: publisher,
		interval:  cfg.Gate.IntervalSeconds,
		initiator: cfg.Gate.Initiator,
	}
	g.gate = gate.New(clock, g)
	g.exempt.Store(buildExemptSet(cfg.Gate.Exempt))
	return g
}

// Setup fixes the cooldown interval from config. Must be called once
// before Protect; a second call fails with gate.ErrAlreadyInitialized.
func (g *Guard) Setup() error {
	return g.gate.Init(g.initiator, g.interval)
}

// Protect runs fn under cooldown enforcement for identity. Identities
// on the configured exempt list bypass enforcement entirely; everyone
// else goes through the gate. Rejections are recorded as observable
// events before the error is returned to the host.
func (g *Guard) Protect(identity string, fn func() error) error {
	if g.isExempt(identity) {
		if g.logger != nil {
			g.logger.Debug("exempt identity bypassed gate", "identity", identity)
		}
		return fn()
	}
	err := g.gate.Do(identity, fn)
	var ce *gate.CooldownError
	if errors.As(err, &ce) {
		g.recordRejected(ce)
	}
	return err
}

// UpdateConfig applies a reloaded config. Only the exempt list is
// live-updatable; the cooldown interval is immutable once Setup ran
// and a changed value is ignored with a warning.
func (g *Guard) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if g.gate.IsInitialized() && cfg.Gate.IntervalSeconds != g.interval && g.logger != nil {
		g.logger.Warn("ignoring interval change after initialization",
			"configured", cfg.Gate.IntervalSeconds,
			"active", g.interval,
		)
	}
	g.exempt.Store(buildExemptSet(cfg.Gate.Exempt))
}

func (g *Guard) IsInitialized() bool {
	return g.gate.IsInitialized()
}

func (g *Guard) Interval() uint32 {
	return g.gate.Interval()
}

func (g *Guard) Expiry(identity string) (uint64, bool) {
	return g.gate.Expiry(identity)
}

func (g *Guard) RootCaller() (string, bool) {
	return g.gate.RootCaller()
}

// RecordInitialized implements gate.Recorder.
func (g *Guard) RecordInitialized(identity string, intervalSec uint32) {
	ev := model.GateEvent{
		Timestamp:   time.Now().UTC(),
		Type:        model.EventInitialized,
		Identity:    identity,
		IntervalSec: intervalSec,
	}
	if g.logger != nil {
		g.logger.Info("gate initialized", "initiator", identity, "interval_sec", intervalSec)
	}
	g.fanOut(ev)
}

// RecordTriggered implements gate.Recorder.
func (g *Guard) RecordTriggered(identity string, expiry uint64) {
	ev := model.GateEvent{
		Timestamp: time.Now().UTC(),
		Type:      model.EventTriggered,
		Identity:  identity,
		Expiry:    expiry,
	}
	if g.logger != nil {
		g.logger.Debug("cooldown triggered", "identity", identity, "expiry", expiry)
	}
	if g.stats != nil {
		g.stats.RecordTrigger(identity, expiry)
	}
	g.fanOut(ev)
	if g.store != nil {
		_ = g.store.SaveExpiry(context.Background(), identity, expiry)
	}
}

func (g *Guard) recordRejected(ce *gate.CooldownError) {
	ev := model.GateEvent{
		Timestamp: time.Now().UTC(),
		Type:      model.EventRejected,
		Identity:  ce.Root,
		Caller:    ce.Caller,
		Expiry:    ce.Expiry,
	}
	if g.logger != nil {
		g.logger.Warn("call rejected by cooldown",
			"identity", ce.Root,
			"caller", ce.Caller,
			"expiry", ce.Expiry,
		)
	}
	if g.stats != nil {
		g.stats.RecordRejection(ce.Root)
	}
	g.fanOut(ev)
}

func (g *Guard) fanOut(ev model.GateEvent) {
	if g.events != nil {
		g.events.Add(ev)
	}
	if g.store != nil {
		_ = g.store.SaveEvent(context.Background(), ev)
	}
	if g.publisher != nil {
		g.publisher.Publish(context.Background(), ev)
	}
}

func (g *Guard) isExempt(identity string) bool {
	if v := g.exempt.Load(); v != nil {
		set := v.(map[string]struct{})
		_, ok := set[identity]
		return ok
	}
	return false
}

func buildExemptSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
