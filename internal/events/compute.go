package events

import (
	"context"
	"encoding/json"
	"math"
	"slices"

	"github.com/sirosfoundation/go-realtime-shell/internal/websocket"
)

type sumRequest struct {
	A *float64 `json:"a" validate:"required"`
	B *float64 `json:"b" validate:"required"`
}

type reverseRequest struct {
	Text *string `json:"text" validate:"required"`
}

type randomRequest struct {
	Min *float64 `json:"min" validate:"required"`
	Max *float64 `json:"max" validate:"required"`
}

func (c *Catalog) sum(ctx context.Context, s websocket.Socket, in sumRequest) error {
	return s.Emit("sum_result", map[string]any{
		"a":         *in.A,
		"b":         *in.B,
		"result":    *in.A + *in.B,
		"timestamp": websocket.Timestamp(),
	})
}

// reverseText reverses by code point so multi-byte characters stay intact
func (c *Catalog) reverseText(ctx context.Context, s websocket.Socket, in reverseRequest) error {
	runes := []rune(*in.Text)
	slices.Reverse(runes)
	return s.Emit("text_reversed", map[string]any{
		"original":  *in.Text,
		"reversed":  string(runes),
		"timestamp": websocket.Timestamp(),
	})
}

func (c *Catalog) randomNumber(ctx context.Context, s websocket.Socket, in randomRequest) error {
	lo, hi := *in.Min, *in.Max
	if lo >= hi {
		received, _ := json.Marshal(in)
		return s.Emit("random_number_error", invalidInput("Invalid range", "Min must be less than max", received))
	}

	return s.Emit("number_generated", map[string]any{
		"min":       lo,
		"max":       hi,
		"result":    math.Floor(c.random()*(hi-lo+1)) + lo,
		"timestamp": websocket.Timestamp(),
	})
}
