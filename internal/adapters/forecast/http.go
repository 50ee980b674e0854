package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/gauntlet/internal/domain/model"
)

// forecastRequest is the wire shape sent to an upstream model endpoint.
type forecastRequest struct {
	Round    int             `json:"round"`
	Horizons []model.Horizon `json:"horizons"`
}

// forecastAnswer is one horizon's answer from the upstream endpoint. A
// null probability means the model could not produce one.
type forecastAnswer struct {
	Horizon     model.HorizonID    `json:"horizon"`
	Probability model.Opt[float64] `json:"probability"`
	Confidence  model.Opt[float64] `json:"confidence"`
	CandlesBack model.Opt[int]     `json:"candles_back"`
}

// HTTPForecaster queries an upstream model service over HTTP. The
// per-call deadline comes from the pool's context.
type HTTPForecaster struct {
	modelID string
	url     string
	client  *http.Client
}

// NewHTTPForecaster creates a forecaster that POSTs round requests to url.
func NewHTTPForecaster(modelID, url string, client *http.Client) *HTTPForecaster {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPForecaster{modelID: modelID, url: url, client: client}
}

// ModelID returns the registered model id.
func (f *HTTPForecaster) ModelID() string { return f.modelID }

// Forecast requests one round's predictions from the upstream endpoint.
func (f *HTTPForecaster) Forecast(ctx context.Context, round int, horizons []model.Horizon) ([]model.Prediction, error) {
	body, err := json.Marshal(forecastRequest{Round: round, Horizons: horizons})
	if err != nil {
		return nil, fmt.Errorf("marshal forecast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", f.modelID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast %s: unexpected status %d", f.modelID, resp.StatusCode)
	}

	var answers []forecastAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answers); err != nil {
		return nil, fmt.Errorf("decode forecast response for %s: %w", f.modelID, err)
	}

	out := make([]model.Prediction, 0, len(answers))
	for _, a := range answers {
		out = append(out, model.Prediction{
			ModelID:     f.modelID,
			Round:       round,
			Horizon:     a.Horizon,
			Probability: a.Probability,
			Confidence:  a.Confidence,
			CandlesBack: a.CandlesBack,
		})
	}
	return out, nil
}
