package guard

import (
	"errors"
	"testing"

	"coolgate/internal/config"
	"coolgate/internal/events"
	"coolgate/internal/gate"
	"coolgate/internal/metrics"
	"coolgate/internal/model"
)

type fakeClock struct {
	now uint64
}

func (c *fakeClock) Now() uint64 {
	return c.now
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Gate.IntervalSeconds = 60
	cfg.Gate.Initiator = "ops"
	cfg.API.Enabled = false
	return cfg
}

func newGuardForTest(cfg *config.Config) (*Guard, *fakeClock, *events.Store, *metrics.Store) {
	clock := &fakeClock{now: 1000}
	eventsStore := events.NewStore(100)
	statsStore := metrics.NewStore(100)
	g := New(cfg, clock, nil, eventsStore, statsStore, nil, nil)
	return g, clock, eventsStore, statsStore
}

func TestSetupOnce(t *testing.T) {
	g, _, eventsStore, _ := newGuardForTest(testConfig())
	if err := g.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := g.Setup(); !errors.Is(err, gate.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	if g.Interval() != 60 {
		t.Fatalf("expected interval 60, got %d", g.Interval())
	}
	list := eventsStore.List(0)
	if len(list) != 1 || list[0].Type != model.EventInitialized || list[0].Identity != "ops" || list[0].IntervalSec != 60 {
		t.Fatalf("expected single initialized event, got %+v", list)
	}
}

func TestProtectRecordsTriggerAndRejection(t *testing.T) {
	g, _, eventsStore, statsStore := newGuardForTest(testConfig())
	if err := g.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := g.Protect("alice", func() error { return nil }); err != nil {
		t.Fatalf("first call: %v", err)
	}
	var ce *gate.CooldownError
	if err := g.Protect("alice", func() error { return nil }); !errors.As(err, &ce) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if ce.Root != "alice" || ce.Expiry != 1060 {
		t.Fatalf("unexpected error fields %+v", ce)
	}

	list := eventsStore.List(0)
	if len(list) != 3 {
		t.Fatalf("expected 3 events, got %d", len(list))
	}
	if list[1].Type != model.EventTriggered || list[1].Identity != "alice" || list[1].Expiry != 1060 {
		t.Fatalf("unexpected triggered event %+v", list[1])
	}
	if list[2].Type != model.EventRejected || list[2].Identity != "alice" || list[2].Caller != "alice" {
		t.Fatalf("unexpected rejected event %+v", list[2])
	}

	st, _, ok := statsStore.Get("alice")
	if !ok || st.Triggers != 1 || st.Rejections != 1 || st.LastExpiry != 1060 {
		t.Fatalf("unexpected stats %+v ok=%v", st, ok)
	}
}

func TestProtectBeforeSetup(t *testing.T) {
	g, _, _, _ := newGuardForTest(testConfig())
	if err := g.Protect("alice", func() error { return nil }); !errors.Is(err, gate.ErrUninitialized) {
		t.Fatalf("expected ErrUninitialized, got %v", err)
	}
}

func TestReentrantRejectionReportsBothIdentities(t *testing.T) {
	g, _, eventsStore, _ := newGuardForTest(testConfig())
	if err := g.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	var nestedErr error
	err := g.Protect("alice", func() error {
		nestedErr = g.Protect("carol", func() error { return nil })
		return nil
	})
	if err != nil {
		t.Fatalf("outer call: %v", err)
	}
	var ce *gate.CooldownError
	if !errors.As(nestedErr, &ce) {
		t.Fatalf("expected nested CooldownError, got %v", nestedErr)
	}
	if ce.Root != "alice" || ce.Caller != "carol" {
		t.Fatalf("unexpected fields %+v", ce)
	}
	list := eventsStore.List(1)
	if len(list) != 1 || list[0].Type != model.EventRejected || list[0].Caller != "carol" || list[0].Identity != "alice" {
		t.Fatalf("unexpected rejected event %+v", list)
	}
}

func TestExemptIdentityBypassesGate(t *testing.T) {
	cfg := testConfig()
	cfg.Gate.Exempt = []string{"svc-janitor"}
	g, _, _, _ := newGuardForTest(cfg)
	if err := g.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := g.Protect("svc-janitor", func() error { return nil }); err != nil {
			t.Fatalf("exempt call %d: %v", i, err)
		}
	}
	if _, ok := g.Expiry("svc-janitor"); ok {
		t.Fatalf("exempt identity must not get an expiry entry")
	}
}

func TestUpdateConfigKeepsInterval(t *testing.T) {
	g, clock, _, _ := newGuardForTest(testConfig())
	if err := g.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	next := testConfig()
	next.Gate.IntervalSeconds = 5
	next.Gate.Exempt = []string{"bob"}
	g.UpdateConfig(next)
	if g.Interval() != 60 {
		t.Fatalf("interval must stay 60, got %d", g.Interval())
	}
	if err := g.Protect("bob", func() error { return nil }); err != nil {
		t.Fatalf("bob exempt after reload: %v", err)
	}
	if err := g.Protect("alice", func() error { return nil }); err != nil {
		t.Fatalf("alice: %v", err)
	}
	clock.now += 59
	if err := g.Protect("alice", func() error { return nil }); err == nil {
		t.Fatalf("alice must still be on the original 60s cooldown")
	}
}
