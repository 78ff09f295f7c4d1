package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/api/idtoken"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

// functionRequest is the Cloud Function's request body. Transactions are
// sent as a list; the function is a batch endpoint.
type functionRequest struct {
	Transactions []functionTransaction `json:"transactions"`
}

type functionTransaction struct {
	TransactionID   string  `json:"transaction_id"`
	Vendor          string  `json:"vendor"`
	VendorCleaned   string  `json:"vendor_cleaned"`
	VendorMetaphone string  `json:"vendor_metaphone"`
	Amount          float64 `json:"amount"`
	Description     string  `json:"description"`
	Day             int     `json:"day"`
	Month           int     `json:"month"`
	DayName         string  `json:"day_name"`
}

type functionResponse struct {
	Predictions []struct {
		Category    string  `json:"category"`
		Subcategory string  `json:"subcategory"`
		Confidence  float64 `json:"confidence"`
	} `json:"predictions"`
	ModelVersion string `json:"model_version"`
}

// CloudFunctionBackend calls the serverless inference endpoint with an
// identity-token authenticated client.
type CloudFunctionBackend struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewCloudFunctionBackend builds a backend for the given function URL. The
// URL doubles as the token audience.
func NewCloudFunctionBackend(ctx context.Context, url string, timeout time.Duration) (*CloudFunctionBackend, error) {
	client, err := idtoken.NewClient(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("NewCloudFunctionBackend: creating idtoken client: %w", err)
	}
	return &CloudFunctionBackend{url: url, client: client, timeout: timeout}, nil
}

// NewCloudFunctionBackendWithClient is like NewCloudFunctionBackend but uses
// the provided HTTP client. Used in tests.
func NewCloudFunctionBackendWithClient(url string, client *http.Client, timeout time.Duration) *CloudFunctionBackend {
	return &CloudFunctionBackend{url: url, client: client, timeout: timeout}
}

func (b *CloudFunctionBackend) Name() string { return "cloud_function" }

func (b *CloudFunctionBackend) Predict(ctx context.Context, tx *domain.Transaction) (*domain.Prediction, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(functionRequest{Transactions: []functionTransaction{{
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("Predict: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("Predict: %w: %v", domain.ErrInferenceTimeout, err)
		}
		return nil, fmt.Errorf("Predict: calling inference function: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("Predict: inference function returned %d: %s", resp.StatusCode, body)
	}

	var out functionResponse
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
		ModelVersion: out.ModelVersion,
		Source:       b.Name(),
		PredictedAt:  time.Now().UTC(),
	}, nil
}
