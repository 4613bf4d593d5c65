package services

import (
	"context"
	"testing"

	domain "github.com/seera-lab/api/internal/domain"
)

func TestProjectTimeline(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		status domain.OrderStatus
		want   domain.Timeline
	}{
		{domain.OrderStatusNew, domain.Timeline{Review: domain.StageActive, Work: domain.StagePending, Delivery: domain.StagePending}},
		{domain.OrderStatusInProgress, domain.Timeline{Review: domain.StageCompleted, Work: domain.StageActive, Delivery: domain.StagePending}},
		{domain.OrderStatusCompleted, domain.Timeline{Review: domain.StageCompleted, Work: domain.StageCompleted, Delivery: domain.StageCompleted}},
		{domain.OrderStatusCancelled, domain.Timeline{Review: domain.StagePending, Work: domain.StagePending, Delivery: domain.StagePending}},
	}
	for _, tc := range cases {
		if got := ProjectTimeline(ctx, tc.status, nil); got != tc.want {
			t.Fatalf("timeline for %s = %+v, want %+v", tc.status, got, tc.want)
		}
	}
}

func TestProjectTimelineCancelledShowsNoProgress(t *testing.T) {
	got := ProjectTimeline(context.Background(), domain.OrderStatusCancelled, nil)
	if got.Review != domain.StagePending || got.Work != domain.StagePending || got.Delivery != domain.StagePending {
		t.Fatalf("cancelled orders must render every stage pending, got %+v", got)
	}
}

func TestProjectTimelineUnknownStatusDegrades(t *testing.T) {
	ctx := context.Background()
	var logged string
	logger := func(_ context.Context, event string, _ map[string]any) {
		logged = event
	}

	got := ProjectTimeline(ctx, domain.OrderStatus("ARCHIVED"), logger)
	want := domain.Timeline{Review: domain.StageActive, Work: domain.StagePending, Delivery: domain.StagePending}
	if got != want {
		t.Fatalf("unknown status must degrade to the NEW projection, got %+v", got)
	}
	if logged != "order.timeline.unknown_status" {
		t.Fatalf("expected anomaly log, got %q", logged)
	}
}
