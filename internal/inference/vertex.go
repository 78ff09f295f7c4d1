package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

// vertexRequest follows the Vertex AI prediction REST contract: one
// instance per transaction, model metadata in the response.
type vertexRequest struct {
	Instances []functionTransaction `json:"instances"`
}

type vertexResponse struct {
	Predictions []struct {
		Category    string  `json:"category"`
		Subcategory string  `json:"subcategory"`
		Confidence  float64 `json:"confidence"`
	} `json:"predictions"`
	ModelVersionID string `json:"modelVersionId"`
}

// VertexBackend calls a Vertex AI endpoint's :predict route with an
// OAuth2-authenticated client.
type VertexBackend struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// NewVertexBackend builds a backend for the given endpoint URL using
// Application Default Credentials.
func NewVertexBackend(ctx context.Context, endpoint string, timeout time.Duration) (*VertexBackend, error) {
	client, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("NewVertexBackend: creating oauth client: %w", err)
	}
	return &VertexBackend{endpoint: endpoint, client: client, timeout: timeout}, nil
}

// NewVertexBackendWithClient is like NewVertexBackend but uses the provided
// HTTP client. Used in tests.
func NewVertexBackendWithClient(endpoint string, client *http.Client, timeout time.Duration) *VertexBackend {
	return &VertexBackend{endpoint: endpoint, client: client, timeout: timeout}
}

func (b *VertexBackend) Name() string { return "vertex_ai" }

func (b *VertexBackend) Predict(ctx context.Context, tx *domain.Transaction) (*domain.Prediction, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(vertexRequest{Instances: []functionTransaction{{
		TransactionID:   tx.ID,
		Vendor:          tx.Vendor,
		VendorCleaned:   tx.VendorCleaned,
		VendorMetaphone: tx.VendorMetaphone,
		Amount:          tx.Amount,
		Description:     tx.Description,
		Day:             tx.Day,
		Month:           tx.Month,
		DayName:         tx.DayName,
	}}})
	if err != nil {
		return nil, fmt.Errorf("Predict: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("Predict: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("Predict: %w: %v", domain.ErrInferenceTimeout, err)
		}
		return nil, fmt.Errorf("Predict: calling vertex endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("Predict: vertex endpoint returned %d: %s", resp.StatusCode, body)
	}

	var out vertexResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("Predict: decoding response: %w", err)
	}
	if len(out.Predictions) == 0 {
		return nil, domain.ErrNoPredictionAvailable
	}

	p := out.Predictions[0]
	return &domain.Prediction{
		Category:     p.Category,
		Subcategory:  p.Subcategory,
		Confidence:   p.Confidence,
		ModelVersion: out.ModelVersionID,
		Source:       b.Name(),
		PredictedAt:  time.Now().UTC(),
	}, nil
}
