package services

import (
	"context"

	domain "github.com/seera-lab/api/internal/domain"
)

// timelineByStatus maps each order status onto the three client-facing stages.
// Cancelled orders show no progress, so every stage stays pending.
var timelineByStatus = map[domain.OrderStatus]domain.Timeline{
	domain.OrderStatusNew: {
		Review:   domain.StageActive,
		Work:     domain.StagePending,
		Delivery: domain.StagePending,
	},
	domain.OrderStatusInProgress: {
		Review:   domain.StageCompleted,
		Work:     domain.StageActive,
		Delivery: domain.StagePending,
	},
	domain.OrderStatusCompleted: {
		Review:   domain.StageCompleted,
		Work:     domain.StageCompleted,
		Delivery: domain.StageCompleted,
	},
	domain.OrderStatusCancelled: {
		Review:   domain.StagePending,
		Work:     domain.StagePending,
		Delivery: domain.StagePending,
	},
}

// ProjectTimeline renders the client progress view for an order status. An
// unknown status (stale document written by an older deploy) degrades to the
// NEW projection instead of failing the read, and is logged as an anomaly.
func ProjectTimeline(ctx context.Context, status domain.OrderStatus, logger func(ctx context.Context, event string, fields map[string]any)) domain.Timeline {
	if timeline, ok := timelineByStatus[status]; ok {
		return timeline
	}
	if logger != nil {
		logger(ctx, "order.timeline.unknown_status", map[string]any{
			"status": string(status),
		})
	}
	return timelineByStatus[domain.OrderStatusNew]
}
