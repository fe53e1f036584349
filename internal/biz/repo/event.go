package repo

import (
	"context"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

// EventRepo emits listing lifecycle events to downstream consumers
type EventRepo interface {
	Emit(ctx context.Context, ev domain.ListingEvent) error
}
