package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"match-engine-go/internal/evaluation"
	"match-engine-go/internal/logger"
	"match-engine-go/internal/storage"
	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/types"
)

// HealthChecker reports whether the scoring service is up and serving a model.
// An unreachable service reads as unhealthy, never as an error.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// batchReader is the slice of the MySQL store the history endpoints need.
type batchReader interface {
	GetLatestEvaluationBatch(ctx context.Context, jobID string) (*models.EvaluationBatch, error)
	ListEvaluationBatches(ctx context.Context, jobID string, limit int) ([]models.EvaluationBatch, error)
}

// EvaluationHandler exposes evaluation runs and their history.
type EvaluationHandler struct {
	storage      *storage.Storage
	batches      batchReader
	orchestrator *evaluation.Orchestrator
	scorerHealth HealthChecker
}

// NewEvaluationHandler creates the evaluation handler.
func NewEvaluationHandler(storageManager *storage.Storage, orchestrator *evaluation.Orchestrator, scorerHealth HealthChecker) *EvaluationHandler {
	h := &EvaluationHandler{
		storage:      storageManager,
		orchestrator: orchestrator,
		scorerHealth: scorerHealth,
	}
	if storageManager != nil && storageManager.MySQL != nil {
		h.batches = storageManager.MySQL
	}
	return h
}

// EvaluateRequest is the body of POST /jobs/:id/evaluate.
type EvaluateRequest struct {
	CandidateIDs []string `json:"candidate_ids"`
	Force        bool     `json:"force"`
	RequestedBy  string   `json:"requested_by"`
}

// HandleEvaluate runs one evaluation for the job and returns the ranking.
func (h *EvaluationHandler) HandleEvaluate(ctx context.Context, jobID string, req EvaluateRequest) (*types.EvaluationResponse, error) {
	return h.orchestrator.Evaluate(ctx, evaluation.Request{
		JobID:        jobID,
		CandidateIDs: req.CandidateIDs,
		Force:        req.Force,
		RequestedBy:  req.RequestedBy,
	})
}

// HandleLatest replays the most recent persisted run for a job. Returns
// (nil, nil) when the job has never been evaluated.
func (h *EvaluationHandler) HandleLatest(ctx context.Context, jobID string) (*types.EvaluationResponse, error) {
	batch, err := h.batches.GetLatestEvaluationBatch(ctx, jobID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, nil
	}
	return replayBatch(batch)
}

// BatchSummary is one row of a job's evaluation history.
type BatchSummary struct {
	EvaluationID       string    `json:"evaluation_id"`
	JobID              string    `json:"job_id"`
	RequestedBy        string    `json:"requested_by,omitempty"`
	TotalEvaluated     int       `json:"total_evaluated"`
	SuccessCount       int       `json:"success_count"`
	FailureCount       int       `json:"failure_count"`
	ModelVersion       string    `json:"model_version"`
	ModelVersionsMixed bool      `json:"model_versions_mixed,omitempty"`
	EvaluatedAt        time.Time `json:"evaluated_at"`
}

// HandleHistory lists a job's evaluation runs newest first.
func (h *EvaluationHandler) HandleHistory(ctx context.Context, jobID string, limit int) ([]BatchSummary, error) {
	batches, err := h.batches.ListEvaluationBatches(ctx, jobID, limit)
	if err != nil {
		return nil, err
	}
	summaries := make([]BatchSummary, 0, len(batches))
	for _, b := range batches {
		summaries = append(summaries, BatchSummary{
			EvaluationID:       b.BatchID,
			JobID:              b.JobID,
			RequestedBy:        b.RequestedBy,
			TotalEvaluated:     b.TotalEvaluated,
			SuccessCount:       b.SuccessCount,
			FailureCount:       b.FailureCount,
			ModelVersion:       b.ModelVersion,
			ModelVersionsMixed: b.ModelVersionsMixed,
			EvaluatedAt:        b.EvaluatedAt,
		})
	}
	return summaries, nil
}

// replayBatch rebuilds the original response from the frozen ranking JSON.
func replayBatch(batch *models.EvaluationBatch) (*types.EvaluationResponse, error) {
	var candidates []types.CandidateScore
	if len(batch.RankedResultsJSON) > 0 {
		if err := json.Unmarshal(batch.RankedResultsJSON, &candidates); err != nil {
			return nil, err
		}
	}
	return &types.EvaluationResponse{
		EvaluationID:       batch.BatchID,
		JobID:              batch.JobID,
		Candidates:         candidates,
		TotalEvaluated:     batch.TotalEvaluated,
		SuccessCount:       batch.SuccessCount,
		FailureCount:       batch.FailureCount,
		EvaluatedAt:        batch.EvaluatedAt,
		ModelVersion:       batch.ModelVersion,
		ModelVersionsMixed: batch.ModelVersionsMixed,
		EvaluatedBy:        batch.RequestedBy,
	}, nil
}

// HealthStatus is the aggregate health report.
type HealthStatus struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details"`
}

// HandleHealth checks each backend and the scoring service. The report is
// degraded, not an error, when a dependency is down.
func (h *EvaluationHandler) HandleHealth(ctx context.Context) *HealthStatus {
	details := make(map[string]string)
	healthy := true

	if h.storage != nil && h.storage.MySQL != nil {
		if err := h.storage.MySQL.Ping(ctx); err != nil {
			details["mysql"] = "down: " + err.Error()
			healthy = false
		} else {
			details["mysql"] = "up"
		}
	} else {
		details["mysql"] = "not configured"
		healthy = false
	}

	if h.storage != nil && h.storage.Redis != nil {
		if err := h.storage.Redis.Ping(ctx); err != nil {
			details["redis"] = "down: " + err.Error()
			healthy = false
		} else {
			details["redis"] = "up"
		}
	} else {
		details["redis"] = "not configured"
	}

	if h.scorerHealth != nil {
		if h.scorerHealth.HealthCheck(ctx) {
			details["scoring"] = "up"
		} else {
			details["scoring"] = "not ready"
			healthy = false
		}
	} else {
		details["scoring"] = "not configured"
		healthy = false
	}

	status := "healthy"
	if !healthy {
		status = "degraded"
		logger.Warn().Interface("details", details).Msg("Health check degraded")
	}
	return &HealthStatus{Status: status, Details: details}
}
