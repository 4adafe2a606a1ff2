package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/scoring"
	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/types"
)

type fakeStore struct {
	mu      sync.Mutex
	jobs    map[string]*models.Job
	cvs     []models.CVDocument
	records map[string]*models.EvaluationRecord // key jobID|cvID
	batches []*models.EvaluationBatch
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:    make(map[string]*models.Job),
		records: make(map[string]*models.EvaluationRecord),
	}
}

func (s *fakeStore) GetJobByID(_ context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return job, nil
}

func (s *fakeStore) ListLatestParsedCVsForCandidates(_ context.Context, candidateIDs []string, parsedStatus string) ([]models.CVDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		want[id] = struct{}{}
	}
	var docs []models.CVDocument
	for _, doc := range s.cvs {
		if doc.ProcessingStatus != parsedStatus || doc.CandidateID == nil {
			continue
		}
		if _, ok := want[*doc.CandidateID]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *fakeStore) ListAllParsedCVs(_ context.Context, parsedStatus string) ([]models.CVDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []models.CVDocument
	for _, doc := range s.cvs {
		if doc.ProcessingStatus == parsedStatus && doc.CandidateID != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *fakeStore) GetEvaluationRecord(_ context.Context, jobID, cvID string) (*models.EvaluationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID+"|"+cvID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) UpsertEvaluationRecord(_ context.Context, rec *models.EvaluationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.JobID+"|"+rec.CVID] = &cp
	return nil
}

func (s *fakeStore) CreateEvaluationBatch(_ context.Context, batch *models.EvaluationBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return nil
}

type fakeScorer struct {
	mu           sync.Mutex
	calls        int
	scores       map[int]float64 // keyed by CVSkillsCount when set
	nextScore    float64
	modelVersion string
	failWith     error
	failFor      map[int]error // per-candidate failure, keyed like scores
}

func (f *fakeScorer) Predict(_ context.Context, fvs []types.FeatureVector) (*types.PredictionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, fv := range fvs {
		if err, ok := f.failFor[fv.CVSkillsCount]; ok {
			return nil, err
		}
	}
	version := f.modelVersion
	if version == "" {
		version = "xgb-2.1.0"
	}
	preds := make([]types.Prediction, len(fvs))
	for i, fv := range fvs {
		score := f.nextScore
		if s, ok := f.scores[fv.CVSkillsCount]; ok {
			score = s
		}
		preds[i] = types.Prediction{Score: score}
	}
	return &types.PredictionResponse{
		Predictions:  preds,
		ModelVersion: version,
		Count:        len(preds),
	}, nil
}

func (f *fakeScorer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func mustProfileJSON(t *testing.T, profile types.CandidateProfile) []byte {
	t.Helper()
	data, err := json.Marshal(profile)
	require.NoError(t, err)
	return data
}

func strPtr(s string) *string { return &s }

func seedJob(store *fakeStore, jobID string) {
	store.jobs[jobID] = &models.Job{
		JobID:           jobID,
		JobTitle:        "Backend Engineer",
		DescriptionText: "Requires 3+ years experience with Go and Docker. Bachelor degree required. Senior role.",
	}
}

func seedCV(t *testing.T, store *fakeStore, cvID, candidateID string, skills []string) {
	t.Helper()
	store.cvs = append(store.cvs, models.CVDocument{
		CVID:             cvID,
		CandidateID:      strPtr(candidateID),
		ProcessingStatus: constants.CVStatusParsed,
		ProfileJSON: mustProfileJSON(t, types.CandidateProfile{
			SchemaVersion: constants.SchemaVersion,
			Name:          "Candidate " + candidateID,
			Email:         candidateID + "@example.com",
			DomainSkills:  skills,
		}),
	})
}

func newTestOrchestrator(store *fakeStore, scorer Scorer) *Orchestrator {
	return NewOrchestrator(store, nil, nil, scorer, nil, Options{
		LockWaitTimeout: 50 * time.Millisecond,
	})
}

func TestEvaluate_JobNotFound(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), &fakeScorer{})
	_, err := o.Evaluate(context.Background(), Request{JobID: "missing"})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestEvaluate_EmptySelectionPersistsNoBatch(t *testing.T) {
	store := newFakeStore()
	seedJob(store, "job-1")
	scorer := &fakeScorer{}
	o := newTestOrchestrator(store, scorer)

	resp, err := o.Evaluate(context.Background(), Request{JobID: "job-1"})
	require.NoError(t, err)

	assert.Empty(t, resp.Candidates)
	assert.Zero(t, resp.TotalEvaluated)
	assert.Equal(t, constants.ModelVersionEmpty, resp.ModelVersion)
	assert.Empty(t, resp.EvaluationID)
	assert.Empty(t, store.batches)
	assert.Zero(t, scorer.callCount())
}

func TestEvaluate_RanksDescendingWithStableOrder(t *testing.T) {
	store := newFakeStore()
	seedJob(store, "job-1")
	seedCV(t, store, "cv-a", "cand-a", []string{"go"})
	seedCV(t, store, "cv-b", "cand-b", []string{"go", "docker"})
	seedCV(t, store, "cv-c", "cand-c", []string{"go", "docker", "sql", "python"})
	// Scores keyed by distinct skill count; cand-a and cand-c tie at 0.40.
	scorer := &fakeScorer{scores: map[int]float64{1: 0.40, 2: 0.90, 4: 0.40}}
	o := newTestOrchestrator(store, scorer)

	resp, err := o.Evaluate(context.Background(), Request{JobID: "job-1", RequestedBy: "hr-7"})
	require.NoError(t, err)

	require.Len(t, resp.Candidates, 3)
	assert.Equal(t, 3, resp.TotalEvaluated)
	assert.Equal(t, 3, resp.SuccessCount)
	assert.Zero(t, resp.FailureCount)

	assert.Equal(t, "cand-b", resp.Candidates[0].CandidateID)
	assert.Equal(t, 1, resp.Candidates[0].Rank)
	// Equal scores keep selection order: cand-a before cand-c.
	assert.Equal(t, "cand-a", resp.Candidates[1].CandidateID)
	assert.Equal(t, 2, resp.Candidates[1].Rank)
	assert.Equal(t, "cand-c", resp.Candidates[2].CandidateID)
	assert.Equal(t, 3, resp.Candidates[2].Rank)

	assert.Equal(t, "hr-7", resp.EvaluatedBy)
	assert.Equal(t, "xgb-2.1.0", resp.ModelVersion)
	assert.False(t, resp.ModelVersionsMixed)

	require.Len(t, store.batches, 1)
	assert.Equal(t, resp.EvaluationID, store.batches[0].BatchID)
	assert.Equal(t, 3, store.batches[0].SuccessCount)
}

func TestEvaluate_ReusesCachedRecordAcrossRuns(t *testing.T) {
	store := newFakeStore()
	seedJob(store, "job-1")
	seedCV(t, store, "cv-a", "cand-a", []string{"go"})
	scorer := &fakeScorer{nextScore: 0.7}
	o := newTestOrchestrator(store, scorer)

	first, err := o.Evaluate(context.Background(), Request{JobID: "job-1"})
	require.NoError(t, err)
	second, err := o.Evaluate(context.Background(), Request{JobID: "job-1"})
	require.NoError(t, err)

	// The pair is scored exactly once; the second run reuses the record.
	assert.Equal(t, 1, scorer.callCount())
	assert.Equal(t, first.Candidates[0].Score, second.Candidates[0].Score)
	// Each run still persists its own batch.
	assert.Len(t, store.batches, 2)
}

func TestEvaluate_ForceRescores(t *testing.T) {
	store := newFakeStore()
	seedJob(store, "job-1")
	seedCV(t, store, "cv-a", "cand-a", []string{"go"})
	scorer := &fakeScorer{nextScore: 0.7}
	o := newTestOrchestrator(store, scorer)

	_, err := o.Evaluate(context.Background(), Request{JobID: "job-1"})
	require.NoError(t, err)
	_, err = o.Evaluate(context.Background(), Request{JobID: "job-1", Force: true})
	require.NoError(t, err)

	assert.Equal(t, 2, scorer.callCount())
}

func TestEvaluate_FailedRecordIsRetriedNextRun(t *testing.T) {
	store := newFakeStore()
	seedJob(store, "job-1")
	seedCV(t, store, "cv-a", "cand-a", []string{"go"})
	scorer := &fakeScorer{failWith: &scoring.Error{Kind: scoring.ErrKindServer, StatusCode: 500, Message: "boom"}}
	o := newTestOrchestrator(store, scorer)

	resp, err := o.Evaluate(context.Background(), Request{JobID: "job-1"})
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, constants.EvaluationStatusFailed, resp.Candidates[0].Status)
	assert.Equal(t, string(scoring.ErrKindServer), resp.Candidates[0].ErrorMessage)

	// A FAILED record does not satisfy the cache: the next run re-scores.
	scorer.mu.Lock()
	scorer.failWith = nil
	scorer.nextScore = 0.8
	scorer.mu.Unlock()

	resp, err = o.Evaluate(context.Background(), Request{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, constants.EvaluationStatusSuccess, resp.Candidates[0].Status)
	assert.Equal(t, 2, scorer.callCount())
}

func TestEvaluate_PartialFailureStillRanksSurvivors(t *testing.T) {
	store := newFakeStore()
	seedJob(store, "job-1")
	seedCV(t, store, "cv-a", "cand-a", []string{"go"})
	seedCV(t, store, "cv-b", "cand-b", []string{"go", "docker"})
	// cv-broken has an undecodable profile snapshot.
	store.cvs = append(store.cvs, models.CVDocument{
		CVID:             "cv-broken",
		CandidateID:      strPtr("cand-x"),
		ProcessingStatus: constants.CVStatusParsed,
		ProfileJSON:      []byte("{not json"),
	})
	scorer := &fakeScorer{scores: map[int]float64{1: 0.30, 2: 0.95}}
	o := newTestOrchestrator(store, scorer)

	resp, err := o.Evaluate(context.Background(), Request{JobID: "job-1"})
	require.NoError(t, err)

	assert.Equal(t, 3, resp.TotalEvaluated)
	assert.Equal(t, 2, resp.SuccessCount)
	assert.Equal(t, 1, resp.FailureCount)

	// The ranking covers the whole batch: failures carry score 0 and sort
	// below every scored candidate, with ranks staying contiguous.
	assert.Equal(t, "cand-b", resp.Candidates[0].CandidateID)
	assert.Equal(t, 1, resp.Candidates[0].Rank)
	assert.Equal(t, "cand-a", resp.Candidates[1].CandidateID)
	assert.Equal(t, 2, resp.Candidates[1].Rank)
	assert.Equal(t, constants.EvaluationStatusFailed, resp.Candidates[2].Status)
	assert.Equal(t, 3, resp.Candidates[2].Rank)
	assert.Zero(t, resp.Candidates[2].Score)
}

func TestEvaluate_RanksAreContiguousAcrossFailures(t *testing.T) {
	store := newFakeStore()
	seedJob(store, "job-1")
	seedCV(t, store, "cv-a", "cand-a", []string{"go"})
	seedCV(t, store, "cv-b", "cand-b", []string{"go", "docker"})
	seedCV(t, store, "cv-c", "cand-c", []string{"go", "docker", "kubernetes"})
	scorer := &fakeScorer{
		scores:  map[int]float64{1: 0.30, 3: 0.95},
		failFor: map[int]error{2: &scoring.Error{Kind: scoring.ErrKindServer, StatusCode: 500, Message: "boom"}},
	}
	o := newTestOrchestrator(store, scorer)

	resp, err := o.Evaluate(context.Background(), Request{JobID: "job-1"})
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 3)

	seen := make(map[int]bool)
	for _, c := range resp.Candidates {
		seen[c.Rank] = true
	}
	for want := 1; want <= len(resp.Candidates); want++ {
		assert.True(t, seen[want], "rank %d must be assigned", want)
	}
	for i := 1; i < len(resp.Candidates); i++ {
		assert.GreaterOrEqual(t, resp.Candidates[i-1].Score, resp.Candidates[i].Score)
	}
	assert.Equal(t, constants.EvaluationStatusFailed, resp.Candidates[2].Status)
}

func TestEvaluate_ExplicitCandidateSelection(t *testing.T) {
	store := newFakeStore()
	seedJob(store, "job-1")
	seedCV(t, store, "cv-a", "cand-a", []string{"go"})
	seedCV(t, store, "cv-b", "cand-b", []string{"docker"})
	scorer := &fakeScorer{nextScore: 0.5}
	o := newTestOrchestrator(store, scorer)

	resp, err := o.Evaluate(context.Background(), Request{JobID: "job-1", CandidateIDs: []string{"cand-b"}})
	require.NoError(t, err)

	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "cand-b", resp.Candidates[0].CandidateID)
	assert.Equal(t, 1, scorer.callCount())
}

func TestEvaluate_MixedModelVersionsAreFlagged(t *testing.T) {
	store := newFakeStore()
	seedJob(store, "job-1")
	seedCV(t, store, "cv-a", "cand-a", []string{"go"})
	seedCV(t, store, "cv-b", "cand-b", []string{"docker"})

	// cand-a was scored by an older model in a previous run.
	oldScore := 0.6
	require.NoError(t, store.UpsertEvaluationRecord(context.Background(), &models.EvaluationRecord{
		JobID:        "job-1",
		CVID:         "cv-a",
		CandidateID:  "cand-a",
		Score:        &oldScore,
		ModelVersion: "xgb-1.0.0",
		Status:       constants.EvaluationStatusSuccess,
		EvaluatedAt:  time.Now().Add(-time.Hour),
	}))

	scorer := &fakeScorer{nextScore: 0.4, modelVersion: "xgb-2.1.0"}
	o := newTestOrchestrator(store, scorer)

	resp, err := o.Evaluate(context.Background(), Request{JobID: "job-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, scorer.callCount())
	assert.True(t, resp.ModelVersionsMixed)
	assert.Equal(t, "xgb-2.1.0", resp.ModelVersion)
}

func TestEvaluate_ParallelWorkersProduceSameRanking(t *testing.T) {
	store := newFakeStore()
	seedJob(store, "job-1")
	scores := make(map[int]float64)
	for i := 0; i < 20; i++ {
		candID := fmt.Sprintf("cand-%02d", i)
		skills := make([]string, i+1)
		for j := range skills {
			skills[j] = fmt.Sprintf("skill%d", j)
		}
		seedCV(t, store, "cv-"+candID, candID, skills)
		scores[i+1] = float64(i) / 20.0
	}
	scorer := &fakeScorer{scores: scores}

	o := NewOrchestrator(store, nil, nil, scorer, nil, Options{Workers: 4})
	resp, err := o.Evaluate(context.Background(), Request{JobID: "job-1"})
	require.NoError(t, err)

	require.Len(t, resp.Candidates, 20)
	for i := 1; i < len(resp.Candidates); i++ {
		assert.GreaterOrEqual(t, resp.Candidates[i-1].Score, resp.Candidates[i].Score)
		assert.Equal(t, i+1, resp.Candidates[i].Rank)
	}
}
