package feishu

import (
	"encoding/json"
	"fmt"
)

// CardButton is one button of an action row. Value and URL are exclusive.
type CardButton struct {
	Label   string
	Value   map[string]interface{}
	URL     string
	Primary bool
}

// Card builds an interactive message card (schema 1.0)
type Card struct {
	elements []map[string]interface{}
}

// NewCard creates an empty card
func NewCard() *Card {
	return &Card{}
}

// Image appends an image element
func (c *Card) Image(imageKey string) *Card {
	c.elements = append(c.elements, map[string]interface{}{
		"tag":     "img",
		"img_key": imageKey,
		"alt":     plainText(""),
	})
	return c
}

// Markdown appends a lark_md text block
func (c *Card) Markdown(text string) *Card {
	c.elements = append(c.elements, map[string]interface{}{
		"tag": "div",
		"text": map[string]interface{}{
			"tag":     "lark_md",
			"content": text,
		},
	})
	return c
}

// Actions appends one row of buttons
func (c *Card) Actions(buttons ...CardButton) *Card {
	if len(buttons) == 0 {
		return c
	}
	actions := make([]map[string]interface{}, 0, len(buttons))
	for _, b := range buttons {
		btn := map[string]interface{}{
			"tag":  "button",
			"text": plainText(b.Label),
			"type": "default",
		}
		if b.Primary {
			btn["type"] = "primary"
		}
		if b.URL != "" {
			btn["url"] = b.URL
		} else {
			btn["value"] = b.Value
		}
		actions = append(actions, btn)
	}
	c.elements = append(c.elements, map[string]interface{}{
		"tag":     "action",
		"actions": actions,
	})
	return c
}

// Len returns the number of elements
func (c *Card) Len() int {
	return len(c.elements)
}

// JSON renders the card content for the message API
func (c *Card) JSON() (string, error) {
	if len(c.elements) == 0 {
		return "", fmt.Errorf("empty card")
	}
	body := map[string]interface{}{
		"config":   map[string]interface{}{"wide_screen_mode": true},
		"elements": c.elements,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode card: %w", err)
	}
	return string(raw), nil
}

func plainText(s string) map[string]interface{} {
	return map[string]interface{}{"tag": "plain_text", "content": s}
}
