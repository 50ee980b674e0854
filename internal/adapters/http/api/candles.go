// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"

	"github.com/okian/gauntlet/internal/domain/model"
)

// candlesSchema is the JSON Schema for POST /candles payloads. Structural
// validation happens against the schema before any typed decoding.
const candlesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["horizon", "round", "bar_seconds", "candles"],
  "additionalProperties": false,
  "properties": {
    "horizon": {"type": "string", "minLength": 1},
    "round": {"type": "integer", "minimum": 1},
    "bar_seconds": {"type": "integer", "minimum": 1},
    "candles": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["start", "open", "high", "low", "close"],
        "additionalProperties": false,
        "properties": {
          "start": {"type": "string", "format": "date-time"},
          "open": {"type": "number", "exclusiveMinimum": 0},
          "high": {"type": "number", "exclusiveMinimum": 0},
          "low": {"type": "number", "exclusiveMinimum": 0},
          "close": {"type": "number", "exclusiveMinimum": 0},
          "volume": {"type": "number", "minimum": 0}
        }
      }
    }
  }
}`

// candlesRequest mirrors the schema for POST /candles.
type candlesRequest struct {
	Horizon    string          `json:"horizon"`
	Round      int             `json:"round"`
	BarSeconds int             `json:"bar_seconds"`
	Candles    []candlePayload `json:"candles"`
}

type candlePayload struct {
	Start  time.Time `json:"start"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// CandlesHandler ingests forward candle windows for label resolution.
type CandlesHandler struct {
	sink   CandleSink
	schema *jsonschema.Schema
}

// NewCandlesHandler creates a new candles handler.
func NewCandlesHandler(sink CandleSink) *CandlesHandler {
	return &CandlesHandler{
		sink:   sink,
		schema: jsonschema.MustCompileString("candles.json", candlesSchema),
	}
}

// HandlePostCandles handles POST /candles requests: schema-validates the
// payload and registers the window with the resolver feed. Candles must
// arrive in ascending time order.
func (h *CandlesHandler) HandlePostCandles(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_candles"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.schema.Validate(raw); err != nil {
		writeError(w, http.StatusBadRequest, "schema_violation", WrapKind(op, ErrBadRequest, err))
		return
	}

	var req candlesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	bar := time.Duration(req.BarSeconds) * time.Second
	series := techan.NewTimeSeries()
	for _, c := range req.Candles {
		candle := techan.NewCandle(techan.NewTimePeriod(c.Start, bar))
		candle.OpenPrice = big.NewDecimal(c.Open)
		candle.MaxPrice = big.NewDecimal(c.High)
		candle.MinPrice = big.NewDecimal(c.Low)
		candle.ClosePrice = big.NewDecimal(c.Close)
		candle.Volume = big.NewDecimal(c.Volume)
		if !series.AddCandle(candle) {
			writeError(w, http.StatusBadRequest, "bad_request",
				WrapKind(op, ErrBadRequest, errors.New("candles out of time order")))
			return
		}
	}

	h.sink.Put(model.HorizonID(req.Horizon), req.Round, series)
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
