package repo

import (
	"context"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

// ImageVerdict is the outcome of checking a product photo
type ImageVerdict struct {
	OK     bool
	Issue  string
	Reason string
}

// ImageValidator checks uploaded product photos before they are accepted
type ImageValidator interface {
	Validate(ctx context.Context, photo domain.Photo) (ImageVerdict, error)
}
