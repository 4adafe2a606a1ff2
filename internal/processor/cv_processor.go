// Package processor turns uploaded CV documents into parsed candidate
// profiles.
package processor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/logger"
	"match-engine-go/internal/metrics"
	"match-engine-go/internal/parser"
	"match-engine-go/internal/storage"
	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/textutil"
)

// ErrUnparseable marks documents that can never parse successfully, as
// opposed to transient storage failures. Consumers drop these instead of
// redelivering them forever.
var ErrUnparseable = errors.New("cv document is unparseable")

// DocumentStore is the storage surface the processor needs.
type DocumentStore interface {
	GetCVDocumentByID(ctx context.Context, cvID string) (*models.CVDocument, error)
	UpdateCVDocumentFields(ctx context.Context, cvID string, updates map[string]interface{}) error
	FindOrCreateCandidate(ctx context.Context, name, email, phone string) (*models.Candidate, error)
}

// CVProcessor parses the raw text of uploaded CVs into profile snapshots and
// links each document to its candidate.
type CVProcessor struct {
	store         DocumentStore
	profileParser *parser.CandidateProfileParser
	parserVersion string
}

// NewCVProcessor builds the processor. A nil profile parser gets the default
// keyword catalog.
func NewCVProcessor(store DocumentStore, profileParser *parser.CandidateProfileParser, parserVersion string) *CVProcessor {
	if profileParser == nil {
		profileParser = parser.NewCandidateProfileParser(nil)
	}
	if parserVersion == "" {
		parserVersion = constants.DefaultParserVersion
	}
	return &CVProcessor{
		store:         store,
		profileParser: profileParser,
		parserVersion: parserVersion,
	}
}

// ProcessUploadedCV parses one document end to end: normalize, extract the
// profile, resolve the candidate, persist the snapshot. A document whose
// profile yields no candidate identifier is marked PARSE_FAILED rather than
// silently linked to nobody.
func (p *CVProcessor) ProcessUploadedCV(ctx context.Context, cvID string) error {
	doc, err := p.store.GetCVDocumentByID(ctx, cvID)
	if err != nil {
		return fmt.Errorf("load CV document %s: %w", cvID, err)
	}

	if doc.RawText == "" {
		p.markFailed(ctx, cvID, "document has no extracted text")
		return fmt.Errorf("%w: %s has no extracted text", ErrUnparseable, cvID)
	}

	normalized := textutil.Normalize(doc.RawText)
	profile := p.profileParser.Parse(normalized)

	if profile.Email == "" && profile.Phone == "" {
		p.markFailed(ctx, cvID, "no contact identifier found")
		return fmt.Errorf("%w: %s yields no email or phone", ErrUnparseable, cvID)
	}

	candidate, err := p.store.FindOrCreateCandidate(ctx, profile.Name, profile.Email, profile.Phone)
	if err != nil {
		p.markFailed(ctx, cvID, err.Error())
		return fmt.Errorf("resolve candidate for CV %s: %w", cvID, err)
	}

	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile for CV %s: %w", cvID, err)
	}
	sum := md5.Sum([]byte(normalized))

	updates := map[string]interface{}{
		"candidate_id":      candidate.CandidateID,
		"profile_json":      profileJSON,
		"raw_text_md5":      hex.EncodeToString(sum[:]),
		"parser_version":    p.parserVersion,
		"processing_status": constants.CVStatusParsed,
	}
	if err := p.store.UpdateCVDocumentFields(ctx, cvID, updates); err != nil {
		return fmt.Errorf("persist parsed CV %s: %w", cvID, err)
	}

	metrics.CVParseTotal.WithLabelValues("parsed").Inc()
	logger.Info().
		Str("cv_id", cvID).
		Str("candidate_id", candidate.CandidateID).
		Int("domain_skills", len(profile.DomainSkills)).
		Msg("CV parsed")
	return nil
}

func (p *CVProcessor) markFailed(ctx context.Context, cvID, reason string) {
	metrics.CVParseTotal.WithLabelValues("failed").Inc()
	logger.Warn().Str("cv_id", cvID).Str("reason", reason).Msg("CV parse failed")
	if err := p.store.UpdateCVDocumentFields(ctx, cvID, map[string]interface{}{
		"processing_status": constants.CVStatusParseFailed,
	}); err != nil {
		logger.Error().Err(err).Str("cv_id", cvID).Msg("Failed to mark CV as parse-failed")
	}
}

// HandleUploadedMessage adapts ProcessUploadedCV to the queue consumer
// callback. Malformed messages are dropped (acked); processing errors nack
// for redelivery.
func (p *CVProcessor) HandleUploadedMessage(ctx context.Context) func([]byte) bool {
	return func(body []byte) bool {
		var msg storage.CVUploadedMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			logger.Error().Err(err).Msg("Dropping undecodable CV-uploaded message")
			return true
		}
		if err := p.ProcessUploadedCV(ctx, msg.CVID); err != nil {
			logger.Error().Err(err).Str("cv_id", msg.CVID).Msg("CV processing failed")
			// Permanent failures are already marked on the row; ack so the
			// message does not loop.
			return errors.Is(err, ErrUnparseable)
		}
		return true
	}
}
