package handler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/types"
)

type fakeBatchReader struct {
	latest    *models.EvaluationBatch
	latestErr error
	list      []models.EvaluationBatch
	listErr   error
}

func (f *fakeBatchReader) GetLatestEvaluationBatch(context.Context, string) (*models.EvaluationBatch, error) {
	return f.latest, f.latestErr
}

func (f *fakeBatchReader) ListEvaluationBatches(context.Context, string, int) ([]models.EvaluationBatch, error) {
	return f.list, f.listErr
}

func TestHandleLatest_NeverEvaluatedIsNotAnError(t *testing.T) {
	h := &EvaluationHandler{batches: &fakeBatchReader{latestErr: gorm.ErrRecordNotFound}}

	resp, err := h.HandleLatest(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestHandleLatest_ReplaysStoredRun(t *testing.T) {
	ranking := []types.CandidateScore{
		{CandidateID: "cand-a", Rank: 1, Score: 0.9},
		{CandidateID: "cand-b", Rank: 2, Score: 0.4},
	}
	rankingJSON, err := json.Marshal(ranking)
	require.NoError(t, err)

	evaluatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &EvaluationHandler{batches: &fakeBatchReader{latest: &models.EvaluationBatch{
		BatchID:           "batch-42",
		JobID:             "job-1",
		RankedResultsJSON: rankingJSON,
		TotalEvaluated:    2,
		SuccessCount:      2,
		ModelVersion:      "xgb-2.1.0",
		EvaluatedAt:       evaluatedAt,
	}}}

	resp, err := h.HandleLatest(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "batch-42", resp.EvaluationID)
	assert.Equal(t, ranking, resp.Candidates)
	assert.Equal(t, evaluatedAt, resp.EvaluatedAt)
}

func TestHandleHistory_MapsBatchesToSummaries(t *testing.T) {
	h := &EvaluationHandler{batches: &fakeBatchReader{list: []models.EvaluationBatch{
		{BatchID: "batch-2", JobID: "job-1", TotalEvaluated: 3, SuccessCount: 2, FailureCount: 1},
		{BatchID: "batch-1", JobID: "job-1", TotalEvaluated: 3, SuccessCount: 3},
	}}}

	summaries, err := h.HandleHistory(context.Background(), "job-1", 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "batch-2", summaries[0].EvaluationID)
	assert.Equal(t, 1, summaries[0].FailureCount)
}
