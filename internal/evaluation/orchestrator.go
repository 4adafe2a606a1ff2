// Package evaluation runs the scoring pipeline for one job against a set of
// candidate CVs: select, score or reuse, rank, persist.
package evaluation

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/features"
	"match-engine-go/internal/logger"
	"match-engine-go/internal/metrics"
	"match-engine-go/internal/parser"
	"match-engine-go/internal/scoring"
	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/textutil"
	"match-engine-go/internal/types"
)

// ErrJobNotFound is returned when the requested job does not exist.
var ErrJobNotFound = errors.New("job not found")

// Store is the relational surface the orchestrator needs.
type Store interface {
	GetJobByID(ctx context.Context, jobID string) (*models.Job, error)
	ListLatestParsedCVsForCandidates(ctx context.Context, candidateIDs []string, parsedStatus string) ([]models.CVDocument, error)
	ListAllParsedCVs(ctx context.Context, parsedStatus string) ([]models.CVDocument, error)
	GetEvaluationRecord(ctx context.Context, jobID, cvID string) (*models.EvaluationRecord, error)
	UpsertEvaluationRecord(ctx context.Context, rec *models.EvaluationRecord) error
	CreateEvaluationBatch(ctx context.Context, batch *models.EvaluationBatch) error
}

// Locker serializes the check-then-score of one (job, cv) pair across
// processes.
type Locker interface {
	AcquireEvaluationLock(ctx context.Context, jobID, cvID string, expiration time.Duration) (string, error)
	ReleaseEvaluationLock(ctx context.Context, jobID, cvID, token string) (bool, error)
}

// RequirementsCache stores derived job requirements keyed by description MD5.
type RequirementsCache interface {
	GetCachedJobRequirements(ctx context.Context, jobID, textMD5 string) (*types.JobRequirements, error)
	CacheJobRequirements(ctx context.Context, jobID, textMD5 string, req *types.JobRequirements) error
}

// Scorer is the model service surface.
type Scorer interface {
	Predict(ctx context.Context, features []types.FeatureVector) (*types.PredictionResponse, error)
}

// Request describes one evaluation run.
type Request struct {
	JobID string
	// CandidateIDs limits the run to these candidates. Empty means every
	// candidate with a parsed CV.
	CandidateIDs []string
	// Force re-scores pairs even when a cached result exists.
	Force       bool
	RequestedBy string
}

// Options tunes orchestrator behavior.
type Options struct {
	// Workers bounds parallelism across candidates. Values below 2 keep the
	// run sequential.
	Workers int
	// LockTTL is the expiry on each per-pair lock.
	LockTTL time.Duration
	// LockWaitTimeout caps how long one candidate waits for its lock.
	LockWaitTimeout time.Duration
}

// Orchestrator coordinates one evaluation run end to end.
type Orchestrator struct {
	store    Store
	locker   Locker
	reqCache RequirementsCache
	scorer   Scorer
	jdParser *parser.RequirementsParser
	opts     Options
}

// NewOrchestrator wires the pipeline. locker and reqCache may be nil when
// Redis is not available; the run then skips locking and description caching
// but is otherwise unchanged.
func NewOrchestrator(store Store, locker Locker, reqCache RequirementsCache, scorer Scorer, jdParser *parser.RequirementsParser, opts Options) *Orchestrator {
	if opts.LockTTL <= 0 {
		opts.LockTTL = constants.EvaluationLockTTL
	}
	if opts.LockWaitTimeout <= 0 {
		opts.LockWaitTimeout = 10 * time.Second
	}
	if jdParser == nil {
		jdParser = parser.NewRequirementsParser(nil)
	}
	return &Orchestrator{
		store:    store,
		locker:   locker,
		reqCache: reqCache,
		scorer:   scorer,
		jdParser: jdParser,
		opts:     opts,
	}
}

// outcome is the per-candidate result of one run.
type outcome struct {
	doc    models.CVDocument
	record *models.EvaluationRecord
	// cached marks a result reused from a prior run.
	cached bool
	err    error
}

// Evaluate runs the full pipeline and returns the ranked response. Scoring
// failures for individual candidates do not fail the run; they surface as
// FAILED entries in the response.
func (o *Orchestrator) Evaluate(ctx context.Context, req Request) (*types.EvaluationResponse, error) {
	startTime := time.Now()
	defer func() {
		metrics.EvaluationBatchDuration.Observe(time.Since(startTime).Seconds())
	}()

	job, err := o.store.GetJobByID(ctx, req.JobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, req.JobID)
		}
		return nil, fmt.Errorf("load job: %w", err)
	}

	requirements, err := o.jobRequirements(ctx, job)
	if err != nil {
		return nil, err
	}

	docs, err := o.selectCVs(ctx, req.CandidateIDs)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}

	if len(docs) == 0 {
		// Nothing to evaluate: respond empty, persist no batch.
		logger.Info().Str("job_id", req.JobID).Msg("Evaluation selected no candidates")
		return &types.EvaluationResponse{
			JobID:        job.JobID,
			JobTitle:     job.JobTitle,
			Candidates:   []types.CandidateScore{},
			EvaluatedAt:  time.Now().UTC(),
			ModelVersion: constants.ModelVersionEmpty,
			EvaluatedBy:  req.RequestedBy,
		}, nil
	}

	outcomes := o.evaluateAll(ctx, req, requirements, docs)

	resp, batch, err := o.assemble(job, req, outcomes)
	if err != nil {
		return nil, err
	}
	if err := o.store.CreateEvaluationBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("persist evaluation batch: %w", err)
	}
	resp.EvaluationID = batch.BatchID

	logger.Info().
		Str("job_id", job.JobID).
		Str("batch_id", batch.BatchID).
		Int("total", resp.TotalEvaluated).
		Int("success", resp.SuccessCount).
		Int("failed", resp.FailureCount).
		Dur("elapsed", time.Since(startTime)).
		Msg("Evaluation run completed")
	return resp, nil
}

// jobRequirements returns the parsed requirements for the job's current
// description text, consulting the cache first. The cache key includes the
// text MD5, so an edited description never hits a stale snapshot.
func (o *Orchestrator) jobRequirements(ctx context.Context, job *models.Job) (*types.JobRequirements, error) {
	normalized := textutil.Normalize(job.DescriptionText)
	sum := md5.Sum([]byte(normalized))
	textMD5 := hex.EncodeToString(sum[:])

	if o.reqCache != nil {
		cached, err := o.reqCache.GetCachedJobRequirements(ctx, job.JobID, textMD5)
		if err == nil {
			return cached, nil
		}
	}

	parsed := o.jdParser.Parse(normalized)
	requirements := &parsed

	if o.reqCache != nil {
		if err := o.reqCache.CacheJobRequirements(ctx, job.JobID, textMD5, requirements); err != nil {
			logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to cache job requirements")
		}
	}
	return requirements, nil
}

// selectCVs resolves the candidate selection to concrete CV documents, one
// per candidate (the latest parsed upload).
func (o *Orchestrator) selectCVs(ctx context.Context, candidateIDs []string) ([]models.CVDocument, error) {
	if len(candidateIDs) > 0 {
		return o.store.ListLatestParsedCVsForCandidates(ctx, candidateIDs, constants.CVStatusParsed)
	}

	all, err := o.store.ListAllParsedCVs(ctx, constants.CVStatusParsed)
	if err != nil {
		return nil, err
	}
	// Rows arrive newest first; keep the first document per candidate.
	seen := make(map[string]struct{}, len(all))
	var docs []models.CVDocument
	for _, doc := range all {
		if doc.CandidateID == nil {
			continue
		}
		if _, ok := seen[*doc.CandidateID]; ok {
			continue
		}
		seen[*doc.CandidateID] = struct{}{}
		docs = append(docs, doc)
	}
	return docs, nil
}

// evaluateAll scores every document, optionally across a bounded worker pool.
// Output order matches input order regardless of scheduling.
func (o *Orchestrator) evaluateAll(ctx context.Context, req Request, requirements *types.JobRequirements, docs []models.CVDocument) []outcome {
	outcomes := make([]outcome, len(docs))

	if o.opts.Workers < 2 || len(docs) < 2 {
		for i, doc := range docs {
			outcomes[i] = o.evaluateOne(ctx, req, requirements, doc)
		}
		return outcomes
	}

	sem := make(chan struct{}, o.opts.Workers)
	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, doc models.CVDocument) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = o.evaluateOne(ctx, req, requirements, doc)
		}(i, doc)
	}
	wg.Wait()
	return outcomes
}

// evaluateOne produces the evaluation record for a single (job, cv) pair,
// reusing a prior SUCCESS record unless the run is forced.
func (o *Orchestrator) evaluateOne(ctx context.Context, req Request, requirements *types.JobRequirements, doc models.CVDocument) outcome {
	out := outcome{doc: doc}

	if !req.Force {
		if rec, ok := o.cachedRecord(ctx, req.JobID, doc.CVID); ok {
			metrics.EvaluationsTotal.WithLabelValues("cached").Inc()
			out.record = rec
			out.cached = true
			return out
		}
	}

	token := o.acquireLock(ctx, req.JobID, doc.CVID)
	if token != "" {
		defer func() {
			if _, err := o.locker.ReleaseEvaluationLock(ctx, req.JobID, doc.CVID, token); err != nil {
				logger.Warn().Err(err).Str("cv_id", doc.CVID).Msg("Failed to release evaluation lock")
			}
		}()
	}

	// Another holder may have scored the pair while we waited on the lock.
	if !req.Force {
		if rec, ok := o.cachedRecord(ctx, req.JobID, doc.CVID); ok {
			metrics.EvaluationsTotal.WithLabelValues("cached").Inc()
			out.record = rec
			out.cached = true
			return out
		}
	}

	rec, err := o.scorePair(ctx, req.JobID, requirements, doc)
	if err != nil {
		out.err = err
		return out
	}
	if rec.Status == constants.EvaluationStatusSuccess {
		metrics.EvaluationsTotal.WithLabelValues("scored").Inc()
	} else {
		metrics.EvaluationsTotal.WithLabelValues("failed").Inc()
		metrics.EvaluationFailures.WithLabelValues(rec.FailureKind).Inc()
	}
	out.record = rec
	return out
}

func (o *Orchestrator) cachedRecord(ctx context.Context, jobID, cvID string) (*models.EvaluationRecord, bool) {
	rec, err := o.store.GetEvaluationRecord(ctx, jobID, cvID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn().Err(err).Str("cv_id", cvID).Msg("Evaluation record lookup failed")
		}
		return nil, false
	}
	if rec.Status != constants.EvaluationStatusSuccess {
		// FAILED records never satisfy the cache; the pair is retried.
		return nil, false
	}
	return rec, true
}

// acquireLock polls for the per-pair lock until LockWaitTimeout. An empty
// token means the run proceeds unlocked: the record upsert is idempotent, so
// the worst case is duplicate scoring work, not corrupt state.
func (o *Orchestrator) acquireLock(ctx context.Context, jobID, cvID string) string {
	if o.locker == nil {
		return ""
	}

	deadline := time.Now().Add(o.opts.LockWaitTimeout)
	for {
		token, err := o.locker.AcquireEvaluationLock(ctx, jobID, cvID, o.opts.LockTTL)
		if err != nil {
			logger.Warn().Err(err).Str("cv_id", cvID).Msg("Evaluation lock acquisition failed")
			return ""
		}
		if token != "" {
			return token
		}
		if time.Now().After(deadline) {
			logger.Warn().Str("job_id", jobID).Str("cv_id", cvID).Msg("Timed out waiting for evaluation lock, proceeding unlocked")
			return ""
		}
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// scorePair builds the feature vector, calls the model and persists the
// resulting record. A scoring failure is persisted as a FAILED record and
// returned as a normal outcome.
func (o *Orchestrator) scorePair(ctx context.Context, jobID string, requirements *types.JobRequirements, doc models.CVDocument) (*models.EvaluationRecord, error) {
	candidateID := ""
	if doc.CandidateID != nil {
		candidateID = *doc.CandidateID
	}

	rec := &models.EvaluationRecord{
		JobID:       jobID,
		CVID:        doc.CVID,
		CandidateID: candidateID,
		EvaluatedAt: time.Now().UTC(),
	}

	var profile types.CandidateProfile
	if err := json.Unmarshal(doc.ProfileJSON, &profile); err != nil {
		rec.Status = constants.EvaluationStatusFailed
		rec.FailureKind = "PROFILE_DECODE_ERROR"
		if persistErr := o.store.UpsertEvaluationRecord(ctx, rec); persistErr != nil {
			return nil, fmt.Errorf("persist failed record: %w", persistErr)
		}
		logger.Warn().Err(err).Str("cv_id", doc.CVID).Msg("CV profile snapshot is not decodable")
		return rec, nil
	}

	fv := features.Build(*requirements, profile)
	featuresJSON, err := models.ToJSON(fv)
	if err != nil {
		return nil, fmt.Errorf("marshal feature vector: %w", err)
	}
	rec.FeaturesJSON = featuresJSON

	scoreStart := time.Now()
	predResp, err := o.scorer.Predict(ctx, []types.FeatureVector{fv})
	metrics.ScoringRequestDuration.WithLabelValues("predict").Observe(time.Since(scoreStart).Seconds())

	if err != nil {
		rec.Status = constants.EvaluationStatusFailed
		rec.FailureKind = string(scoring.KindOf(err))
		if persistErr := o.store.UpsertEvaluationRecord(ctx, rec); persistErr != nil {
			return nil, fmt.Errorf("persist failed record: %w", persistErr)
		}
		logger.Warn().Err(err).
			Str("cv_id", doc.CVID).
			Str("failure_kind", rec.FailureKind).
			Msg("Scoring failed for candidate")
		return rec, nil
	}

	pred := predResp.FirstPrediction()
	score := pred.Score
	rec.Score = &score
	rec.Confidence = pred.Confidence
	rec.ModelVersion = predResp.ModelVersion
	rec.Status = constants.EvaluationStatusSuccess

	if err := o.store.UpsertEvaluationRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist evaluation record: %w", err)
	}
	return rec, nil
}

// assemble ranks the outcomes and freezes them into a batch row plus the
// response payload.
func (o *Orchestrator) assemble(job *models.Job, req Request, outcomes []outcome) (*types.EvaluationResponse, *models.EvaluationBatch, error) {
	candidates := make([]types.CandidateScore, 0, len(outcomes))
	successCount := 0
	versions := make(map[string]struct{})
	freshVersion := ""

	for _, out := range outcomes {
		name, email := candidateIdentity(out.doc)

		if out.err != nil || out.record == nil {
			msg := "evaluation error"
			if out.err != nil {
				msg = out.err.Error()
			}
			candidates = append(candidates, types.CandidateScore{
				CandidateID:    derefOrEmpty(out.doc.CandidateID),
				CandidateName:  name,
				CandidateEmail: email,
				CVID:           out.doc.CVID,
				Status:         constants.EvaluationStatusFailed,
				ErrorMessage:   msg,
			})
			continue
		}

		rec := out.record
		if rec.Status != constants.EvaluationStatusSuccess || rec.Score == nil {
			candidates = append(candidates, types.CandidateScore{
				CandidateID:    rec.CandidateID,
				CandidateName:  name,
				CandidateEmail: email,
				CVID:           rec.CVID,
				Status:         constants.EvaluationStatusFailed,
				ErrorMessage:   rec.FailureKind,
			})
			continue
		}

		if rec.ModelVersion != "" {
			versions[rec.ModelVersion] = struct{}{}
			if !out.cached {
				freshVersion = rec.ModelVersion
			}
		}
		successCount++
		candidates = append(candidates, types.CandidateScore{
			CandidateID:    rec.CandidateID,
			CandidateName:  name,
			CandidateEmail: email,
			CVID:           rec.CVID,
			Score:          *rec.Score,
			Confidence:     rec.Confidence,
			Status:         constants.EvaluationStatusSuccess,
		})
	}

	// One ranking over the whole batch: failed entries carry score 0 and sort
	// below every positive score. Stable sort keeps selection order among
	// equal scores deterministic; ranks are contiguous 1..n.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}

	modelVersion := constants.ModelVersionEmpty
	mixed := len(versions) > 1
	switch {
	case freshVersion != "":
		modelVersion = freshVersion
	case len(versions) > 0:
		for v := range versions {
			modelVersion = v
			break
		}
	}

	resp := &types.EvaluationResponse{
		JobID:              job.JobID,
		JobTitle:           job.JobTitle,
		Candidates:         candidates,
		TotalEvaluated:     len(outcomes),
		SuccessCount:       successCount,
		FailureCount:       len(outcomes) - successCount,
		EvaluatedAt:        time.Now().UTC(),
		ModelVersion:       modelVersion,
		ModelVersionsMixed: mixed,
		EvaluatedBy:        req.RequestedBy,
	}

	batchUUID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("generate batch id: %w", err)
	}
	resultsJSON, err := models.ToJSON(candidates)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal ranked results: %w", err)
	}

	batch := &models.EvaluationBatch{
		BatchID:            batchUUID.String(),
		JobID:              job.JobID,
		RequestedBy:        req.RequestedBy,
		RankedResultsJSON:  resultsJSON,
		TotalEvaluated:     resp.TotalEvaluated,
		SuccessCount:       resp.SuccessCount,
		FailureCount:       resp.FailureCount,
		ModelVersion:       modelVersion,
		ModelVersionsMixed: mixed,
		EvaluatedAt:        resp.EvaluatedAt,
	}
	return resp, batch, nil
}

// candidateIdentity pulls display fields from the CV's profile snapshot.
func candidateIdentity(doc models.CVDocument) (name, email string) {
	if len(doc.ProfileJSON) == 0 {
		return "", ""
	}
	var profile types.CandidateProfile
	if err := json.Unmarshal(doc.ProfileJSON, &profile); err != nil {
		return "", ""
	}
	return profile.Name, profile.Email
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
