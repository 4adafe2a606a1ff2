package handler

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"match-engine-go/internal/config"
	"match-engine-go/internal/logger"
	"match-engine-go/internal/parser"
	"match-engine-go/internal/storage"
	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/textutil"
)

// JobHandler manages job postings and their parsed requirements snapshots.
type JobHandler struct {
	cfg      *config.Config
	storage  *storage.Storage
	jdParser *parser.RequirementsParser
}

// NewJobHandler creates the job handler.
func NewJobHandler(cfg *config.Config, storageManager *storage.Storage, jdParser *parser.RequirementsParser) *JobHandler {
	if jdParser == nil {
		jdParser = parser.NewRequirementsParser(nil)
	}
	return &JobHandler{
		cfg:      cfg,
		storage:  storageManager,
		jdParser: jdParser,
	}
}

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	JobTitle        string `json:"job_title"`
	Department      string `json:"department"`
	Location        string `json:"location"`
	DescriptionText string `json:"description_text"`
}

// CreateJobResponse echoes the stored job with its parsed requirements.
type CreateJobResponse struct {
	JobID        string      `json:"job_id"`
	JobTitle     string      `json:"job_title"`
	Requirements interface{} `json:"requirements"`
}

// HandleCreateJob stores a job posting and derives its requirements snapshot
// eagerly so the first evaluation does not pay the parse.
func (h *JobHandler) HandleCreateJob(ctx context.Context, req CreateJobRequest) (*CreateJobResponse, error) {
	if strings.TrimSpace(req.JobTitle) == "" {
		return nil, fmt.Errorf("job_title is required")
	}
	if strings.TrimSpace(req.DescriptionText) == "" {
		return nil, fmt.Errorf("description_text is required")
	}

	uuidV7, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}

	normalized := textutil.Normalize(req.DescriptionText)
	sum := md5.Sum([]byte(normalized))
	textMD5 := hex.EncodeToString(sum[:])
	requirements := h.jdParser.Parse(normalized)

	reqJSON, err := models.ToJSON(&requirements)
	if err != nil {
		return nil, fmt.Errorf("marshal requirements: %w", err)
	}

	job := &models.Job{
		JobID:               uuidV7.String(),
		JobTitle:            req.JobTitle,
		Department:          req.Department,
		Location:            req.Location,
		DescriptionText:     req.DescriptionText,
		RequirementsJSON:    reqJSON,
		RequirementsTextMD5: textMD5,
	}
	if err := h.storage.MySQL.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	if h.storage.Redis != nil {
		if err := h.storage.Redis.CacheJobRequirements(ctx, job.JobID, textMD5, &requirements); err != nil {
			logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to warm requirements cache")
		}
	}

	logger.Info().
		Str("job_id", job.JobID).
		Str("title", job.JobTitle).
		Int("skills", len(requirements.Skills)).
		Msg("Job created")
	return &CreateJobResponse{
		JobID:        job.JobID,
		JobTitle:     job.JobTitle,
		Requirements: requirements,
	}, nil
}

// HandleGetJob fetches one job posting.
func (h *JobHandler) HandleGetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return h.storage.MySQL.GetJobByID(ctx, jobID)
}
