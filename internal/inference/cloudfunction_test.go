package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

func TestCloudFunctionBackend_Predict(t *testing.T) {
	var gotReq functionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"predictions": []map[string]any{
				{"category": "Food & Dining", "subcategory": "Coffee Shops", "confidence": 0.91},
			},
			"model_version": "v3",
		})
	}))
	defer srv.Close()

	b := NewCloudFunctionBackendWithClient(srv.URL, srv.Client(), 5*time.Second)
	pred, err := b.Predict(context.Background(), &domain.Transaction{
		ID:            "tx-1",
		Vendor:        "COFFEE SHOP",
		VendorCleaned: "coffee shop",
		Amount:        -42.17,
	})
	require.NoError(t, err)

	require.Len(t, gotReq.Transactions, 1)
	assert.Equal(t, "tx-1", gotReq.Transactions[0].TransactionID)
	assert.Equal(t, "coffee shop", gotReq.Transactions[0].VendorCleaned)

	assert.Equal(t, "Food & Dining", pred.Category)
	assert.Equal(t, "Coffee Shops", pred.Subcategory)
	assert.Equal(t, 0.91, pred.Confidence)
	assert.Equal(t, "v3", pred.ModelVersion)
	assert.Equal(t, "cloud_function", pred.Source)
}

func TestCloudFunctionBackend_EmptyPredictions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"predictions": []any{}, "model_version": "v3"})
	}))
	defer srv.Close()

	b := NewCloudFunctionBackendWithClient(srv.URL, srv.Client(), 5*time.Second)
	_, err := b.Predict(context.Background(), &domain.Transaction{ID: "tx-1"})
	assert.ErrorIs(t, err, domain.ErrNoPredictionAvailable)
}

func TestCloudFunctionBackend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewCloudFunctionBackendWithClient(srv.URL, srv.Client(), 5*time.Second)
	_, err := b.Predict(context.Background(), &domain.Transaction{ID: "tx-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestCloudFunctionBackend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	b := NewCloudFunctionBackendWithClient(srv.URL, srv.Client(), 20*time.Millisecond)
	_, err := b.Predict(context.Background(), &domain.Transaction{ID: "tx-1"})
	assert.ErrorIs(t, err, domain.ErrInferenceTimeout)
}

func TestVertexBackend_Predict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req vertexRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Instances, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"predictions": []map[string]any{
				{"category": "Shopping", "confidence": 0.77},
			},
			"modelVersionId": "12",
		})
	}))
	defer srv.Close()

	b := NewVertexBackendWithClient(srv.URL, srv.Client(), 5*time.Second)
	pred, err := b.Predict(context.Background(), &domain.Transaction{ID: "tx-1", VendorCleaned: "store"})
	require.NoError(t, err)

	assert.Equal(t, "Shopping", pred.Category)
	assert.Equal(t, "12", pred.ModelVersion)
	assert.Equal(t, "vertex_ai", pred.Source)
}
