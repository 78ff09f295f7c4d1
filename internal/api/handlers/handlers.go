package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/api/middleware"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/feedback"
	infra "github.com/sdancy10/Financial-Tracker-Backend/internal/infra/bigquery"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/jobs"
)

// FeedbackReader queries the feedback table for reporting endpoints.
type FeedbackReader interface {
	Stats(ctx context.Context, userID string) (*infra.FeedbackStats, error)
	CategoryCorrections(ctx context.Context, limit int) ([]*infra.CategoryCorrection, error)
	AccuracyByModelVersion(ctx context.Context) ([]*infra.ModelAccuracy, error)
}

// FeedbackHandler handles category-correction endpoints.
type FeedbackHandler struct {
	collector *feedback.Collector
	reader    FeedbackReader
	log       zerolog.Logger
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(collector *feedback.Collector, reader FeedbackReader, log zerolog.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		collector: collector,
		reader:    reader,
		log:       log,
	}
}

// SubmitFeedback handles POST /api/feedback
func (h *FeedbackHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var sub feedback.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	fb, err := h.collector.Submit(r.Context(), &sub)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			middleware.WriteError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, domain.ErrTransactionNotFound):
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		default:
			h.log.Error().Err(err).Str("transaction_id", sub.TransactionID).Msg("Failed to record feedback")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to record feedback")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"feedback_id":       fb.FeedbackID,
		"transaction_id":    fb.TransactionID,
		"original_category": fb.OriginalCategory,
		"user_category":     fb.UserCategory,
	})
}

// GetStats handles GET /api/feedback/stats
func (h *FeedbackHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.URL.Query().Get("user_id")

	stats, err := h.reader.Stats(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query feedback stats")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query feedback stats")
		return
	}

	corrections, err := h.reader.CategoryCorrections(ctx, 10)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query category corrections")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query category corrections")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":         stats.Total,
		"corrections":   stats.Corrections,
		"agreement":     stats.Agreement,
		"top_corrected": corrections,
	})
}

// GetAccuracy handles GET /api/feedback/accuracy
func (h *FeedbackHandler) GetAccuracy(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reader.AccuracyByModelVersion(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query model accuracy")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query model accuracy")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"models": rows,
		"count":  len(rows),
	})
}

// TransactionGetter loads stored transactions for the read endpoint.
type TransactionGetter interface {
	Get(ctx context.Context, userID, id string) (*domain.Transaction, error)
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	store TransactionGetter
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(store TransactionGetter, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		store: store,
		log:   log,
	}
}

// GetTransaction handles GET /api/transactions?user_id=...&id=...
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := query.Get("user_id")
	id := query.Get("id")
	if userID == "" || id == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id and id are required")
		return
	}

	tx, err := h.store.Get(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to get transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// BatchHandler enqueues mailbox processing jobs.
type BatchHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(publisher jobs.Publisher, log zerolog.Logger) *BatchHandler {
	return &BatchHandler{
		publisher: publisher,
		log:       log,
	}
}

// EnqueueBatch handles POST /api/process
func (h *BatchHandler) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string     `json:"user_id"`
		AccountID string     `json:"account_id"`
		CheckFrom *time.Time `json:"check_from,omitempty"`
		ForceSync bool       `json:"force_sync"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	job := &jobs.ProcessMailboxJob{
		UserID:    req.UserID,
		AccountID: req.AccountID,
		Timestamp: time.Now().UTC(),
		ForceSync: req.ForceSync,
	}
	if req.CheckFrom != nil {
		job.CheckFrom = *req.CheckFrom
	}

	if err := h.publisher.PublishProcessMailbox(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to enqueue batch job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue batch job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("user_id", req.UserID).Msg("Batch job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  job.JobID,
		"user_id": req.UserID,
		"status":  string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: query.Get("user_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
