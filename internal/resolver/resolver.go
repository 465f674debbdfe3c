// Package resolver is a reference implementation of the assignment resolver
// contract: after a collection window, the bids for a task are compared and
// the winner is assigned. Losing bidders get no explicit rejection; the
// absence of an assignment is the signal. Production deployments typically run
// their own resolver against the same store; this one exists for local
// clusters and for exercising the contract in tests.
package resolver

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dereadi/ganuda-ai-sub006/internal/store"
)

// Comparator orders two bids: negative when a ranks below b, positive when a
// ranks above b. The winning bid is the maximum under the comparator. The
// tie-break policy between equal composite scores is unspecified upstream, so
// it lives entirely in the comparator and can be swapped per deployment.
type Comparator func(a, b store.Bid) int

// ByCompositeScore ranks by composite score. Ties fall back to earliest
// submission, then agent id — a local policy of this reference comparator,
// not part of the upstream contract.
func ByCompositeScore(a, b store.Bid) int {
	switch {
	case a.CompositeScore < b.CompositeScore:
		return -1
	case a.CompositeScore > b.CompositeScore:
		return 1
	}
	switch {
	case a.SubmittedAt.After(b.SubmittedAt):
		return -1
	case a.SubmittedAt.Before(b.SubmittedAt):
		return 1
	}
	return -strings.Compare(a.AgentID, b.AgentID)
}

// Resolver assigns open tasks to their best bid.
type Resolver struct {
	Store   store.Store
	Compare Comparator
	// BatchSize caps how many open tasks one sweep considers (default 100).
	BatchSize int
}

// New returns a Resolver with the default comparator.
func New(st store.Store) *Resolver {
	return &Resolver{Store: st, Compare: ByCompositeScore, BatchSize: 100}
}

// ResolveTask picks the winning bid for one task and assigns it. Returns the
// winning agent id and whether the assignment landed; false with no error
// means there were no bids, or the task was no longer open (lost a race or
// expired).
func (r *Resolver) ResolveTask(ctx context.Context, taskID string) (string, bool, error) {
	bids, err := r.Store.ListBidsForTask(ctx, taskID)
	if err != nil {
		return "", false, err
	}
	if len(bids) == 0 {
		return "", false, nil
	}

	cmp := r.Compare
	if cmp == nil {
		cmp = ByCompositeScore
	}
	best := bids[0]
	for _, b := range bids[1:] {
		if cmp(b, best) > 0 {
			best = b
		}
	}

	assigned, err := r.Store.AssignTask(ctx, taskID, best.AgentID)
	if err != nil {
		return "", false, err
	}
	if !assigned {
		return "", false, nil
	}
	slog.Info("task assigned", "task_id", taskID, "agent_id", best.AgentID, "composite_score", best.CompositeScore)
	return best.AgentID, true, nil
}

// Sweep expires overdue announcements, then resolves every open task that has
// at least one bid. Returns how many tasks were assigned and expired.
func (r *Resolver) Sweep(ctx context.Context) (assigned, expired int, err error) {
	expired, err = r.Store.ExpireOverdueAnnouncements(ctx)
	if err != nil {
		return 0, 0, err
	}

	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}
	tasks, err := r.Store.ListOpenTasks(ctx, limit)
	if err != nil {
		return 0, expired, err
	}
	for _, task := range tasks {
		_, ok, err := r.ResolveTask(ctx, task.TaskID)
		if err != nil {
			slog.Warn("resolve task failed", "task_id", task.TaskID, "err", err)
			continue
		}
		if ok {
			assigned++
		}
	}
	return assigned, expired, nil
}
