package bidder

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dereadi/ganuda-ai-sub006/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// brokenStore overrides the methods under test to fail; everything else
// panics, which catches tests leaking into unrelated store calls.
type brokenStore struct {
	store.Store
}

var errBroken = errors.New("store down")

func (brokenStore) HasBid(context.Context, string, string) (bool, error) {
	return false, errBroken
}

func (brokenStore) GetAgentState(context.Context, string) (*store.AgentState, error) {
	return nil, errBroken
}

func (brokenStore) UpsertAgentHeartbeat(context.Context, string, string) error {
	return errBroken
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculateBid_freshAgentOnPreferredNode(t *testing.T) {
	t.Parallel()
	a := &Agent{AgentID: "jr-1", NodeName: "bluefin"}
	task := store.TaskAnnouncement{
		TaskID:        "task-1",
		Content:       "short task",
		PreferredNode: "bluefin",
	}

	bid := a.CalculateBid(task, DefaultCapabilities(), 0)

	if bid.CapabilityScore != 0.7 || bid.ExperienceScore != 0.5 || bid.LoadScore != 1.0 || bid.Confidence != 0.9 {
		t.Errorf("sub-scores: %+v", bid)
	}
	// 0.4*0.7 + 0.3*0.5 + 0.2*1.0 + 0.1*0.9 = 0.72, then *1.1 for the node match.
	if !almostEqual(bid.CompositeScore, 0.792) {
		t.Errorf("composite: got %v, want 0.792", bid.CompositeScore)
	}
	if bid.TaskID != "task-1" || bid.AgentID != "jr-1" || bid.NodeName != "bluefin" {
		t.Errorf("identity fields: %+v", bid)
	}
}

func TestCalculateBid_noBonusOffPreferredNode(t *testing.T) {
	t.Parallel()
	a := &Agent{AgentID: "jr-1", NodeName: "redfin"}

	bid := a.CalculateBid(store.TaskAnnouncement{PreferredNode: "bluefin", Content: "x"}, DefaultCapabilities(), 0)
	if !almostEqual(bid.CompositeScore, 0.72) {
		t.Errorf("composite off preferred node: got %v, want 0.72", bid.CompositeScore)
	}

	bid = a.CalculateBid(store.TaskAnnouncement{Content: "x"}, DefaultCapabilities(), 0)
	if !almostEqual(bid.CompositeScore, 0.72) {
		t.Errorf("composite with no preference: got %v, want 0.72", bid.CompositeScore)
	}
}

func TestCalculateBid_bonusNotClamped(t *testing.T) {
	t.Parallel()
	a := &Agent{AgentID: "jr-1", NodeName: "bluefin"}
	caps := Capabilities{
		Scores:      map[string]float64{"testing": 1.0},
		SuccessRate: 1.0,
	}
	task := store.TaskAnnouncement{
		RequiredCapabilities: []string{"testing"},
		Content:              "x",
		PreferredNode:        "bluefin",
	}

	bid := a.CalculateBid(task, caps, 0)
	// (0.4 + 0.3 + 0.2 + 0.09) * 1.1 = 1.089; the bonus must push past 1.0.
	if !almostEqual(bid.CompositeScore, 1.089) {
		t.Errorf("composite: got %v, want 1.089", bid.CompositeScore)
	}
	if bid.CompositeScore <= 1.0 {
		t.Error("composite clamped to 1.0; bonus must be allowed to exceed it")
	}
}

func TestLoadCapabilities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing record yields defaults", func(t *testing.T) {
		t.Parallel()
		a := New(newTestStore(t), "jr-1", "bluefin")
		caps := a.LoadCapabilities(ctx)
		if caps.Specialization != "general" || caps.SuccessRate != 0.5 || len(caps.Scores) != 0 {
			t.Errorf("caps: %+v", caps)
		}
	})

	t.Run("store error yields defaults", func(t *testing.T) {
		t.Parallel()
		a := New(brokenStore{}, "jr-1", "bluefin")
		caps := a.LoadCapabilities(ctx)
		if caps.SuccessRate != 0.5 || caps.Scores == nil {
			t.Errorf("caps on store error: %+v", caps)
		}
	})

	t.Run("stored record passes through", func(t *testing.T) {
		t.Parallel()
		st := newTestStore(t)
		a := New(st, "jr-1", "bluefin")
		if err := st.UpsertAgentHeartbeat(ctx, "jr-1", "bluefin"); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
		caps := a.LoadCapabilities(ctx)
		if caps.Specialization != "general" || caps.SuccessRate != 0.5 {
			t.Errorf("caps after heartbeat: %+v", caps)
		}
	})
}

func TestAlreadyBid_failsOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a := New(brokenStore{}, "jr-1", "bluefin")
	if a.AlreadyBid(ctx, "task-1") {
		t.Error("AlreadyBid on store error: got true, must fail open")
	}

	st := newTestStore(t)
	a = New(st, "jr-1", "bluefin")
	if a.AlreadyBid(ctx, "task-1") {
		t.Error("AlreadyBid with no bid: got true")
	}
	if err := a.SubmitBid(ctx, store.Bid{TaskID: "task-1", AgentID: "jr-1"}); err != nil {
		t.Fatalf("SubmitBid: %v", err)
	}
	if !a.AlreadyBid(ctx, "task-1") {
		t.Error("AlreadyBid after submit: got false")
	}
}

func TestHeartbeat_gateAdvancesOnFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := New(brokenStore{}, "jr-1", "bluefin")
	a.HeartbeatInterval = time.Hour

	a.Heartbeat(ctx)
	first := a.nextHeartbeat
	if first.IsZero() {
		t.Fatal("gate not advanced after failed heartbeat")
	}
	// A second call inside the interval must not move the gate again.
	a.Heartbeat(ctx)
	if !a.nextHeartbeat.Equal(first) {
		t.Error("gate moved by a heartbeat inside the interval")
	}
}

func TestHeartbeat_writesAgentState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	a := New(st, "jr-1", "bluefin")

	a.Heartbeat(ctx)
	state, err := st.GetAgentState(ctx, "jr-1")
	if err != nil || state == nil {
		t.Fatalf("GetAgentState: state=%v err=%v", state, err)
	}
	if state.NodeName != "bluefin" {
		t.Errorf("NodeName: got %q", state.NodeName)
	}
}

func TestRunOnce_bidsOncePerTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	a := New(st, "jr-1", "bluefin")

	for _, id := range []string{"t1", "t2", "t3"} {
		if err := st.CreateAnnouncement(ctx, store.TaskAnnouncement{TaskID: id, Content: "do it"}); err != nil {
			t.Fatalf("CreateAnnouncement: %v", err)
		}
	}

	if placed := a.RunOnce(ctx); placed != 3 {
		t.Errorf("first cycle placed %d bids, want 3", placed)
	}
	// Same open tasks, all already bid on.
	if placed := a.RunOnce(ctx); placed != 0 {
		t.Errorf("second cycle placed %d bids, want 0", placed)
	}

	bids, err := st.ListBidsForTask(ctx, "t1")
	if err != nil {
		t.Fatalf("ListBidsForTask: %v", err)
	}
	if len(bids) != 1 || bids[0].AgentID != "jr-1" {
		t.Errorf("bids for t1: %+v", bids)
	}
}

func TestRunOnce_honorsOpenTaskLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	a := New(st, "jr-1", "bluefin")
	a.OpenTaskLimit = 2

	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		if err := st.CreateAnnouncement(ctx, store.TaskAnnouncement{TaskID: id}); err != nil {
			t.Fatalf("CreateAnnouncement: %v", err)
		}
	}
	if placed := a.RunOnce(ctx); placed != 2 {
		t.Errorf("placed %d bids with limit 2, want 2", placed)
	}
}

func TestRun_stopsOnCancel(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	a := New(st, "jr-1", "bluefin")
	a.PollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
