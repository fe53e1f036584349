package data

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	_ "golang.org/x/image/webp"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

const (
	defaultVisionModel = "gpt-4o-mini"

	safetyPrompt = `You are a content safety classifier for a public marketplace.
Rate how likely the image contains nudity, sexual or graphic violent content.
Reply with a single number between 0 and 1 and nothing else.`
)

// visionValidator checks product photo dimensions and safety
type visionValidator struct {
	client    *openai.Client // nil disables the safety check
	model     string
	threshold float64
	log       zerolog.Logger
}

// NewImageValidator creates an image validator. An empty API key skips the safety check.
func NewImageValidator(apiKey, baseURL, model string, threshold float64) repo.ImageValidator {
	v := &visionValidator{
		model:     model,
		threshold: threshold,
		log:       log.With().Str("component", "vision").Logger(),
	}
	if v.model == "" {
		v.model = defaultVisionModel
	}
	if apiKey != "" {
		config := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			config.BaseURL = baseURL
		}
		v.client = openai.NewClientWithConfig(config)
	}
	return v
}

// Validate requires width >= height and a safety score at or below the threshold
func (v *visionValidator) Validate(ctx context.Context, photo domain.Photo) (repo.ImageVerdict, error) {
	data, err := os.ReadFile(photo.Path)
	if err != nil {
		return repo.ImageVerdict{}, fmt.Errorf("read image: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return repo.ImageVerdict{}, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width < cfg.Height {
		return repo.ImageVerdict{
			Issue:  "Image dimensions issue",
			Reason: fmt.Sprintf("Image width (%d) is less than height (%d). Please use an image where width ≥ height.", cfg.Width, cfg.Height),
		}, nil
	}

	if v.client == nil {
		return repo.ImageVerdict{OK: true}, nil
	}

	score, err := v.unsafeScore(ctx, data)
	if err != nil {
		return repo.ImageVerdict{}, err
	}
	v.log.Debug().Float64("score", score).Str("image", photo.Key).Msg("image scored")

	if score > v.threshold {
		return repo.ImageVerdict{
			Issue:  "Safety issue",
			Reason: fmt.Sprintf("Image appears to contain inappropriate content (score: %.2f)", score),
		}, nil
	}
	return repo.ImageVerdict{OK: true}, nil
}

func (v *visionValidator) unsafeScore(ctx context.Context, data []byte) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dataURL := "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: safetyPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailLow},
					},
				},
			},
		},
		Temperature: 0,
		MaxTokens:   10,
	})
	if err != nil {
		return 0, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("no response choices")
	}
	return parseScore(resp.Choices[0].Message.Content)
}

// parseScore reads the first number of a model reply and clamps it to [0, 1]
func parseScore(reply string) (float64, error) {
	field := strings.Fields(strings.TrimSpace(reply))
	if len(field) == 0 {
		return 0, fmt.Errorf("empty score reply")
	}
	score, err := strconv.ParseFloat(strings.TrimRight(field[0], ".,;"), 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable score %q: %w", reply, err)
	}
	switch {
	case score < 0:
		score = 0
	case score > 1:
		score = 1
	}
	return score, nil
}
