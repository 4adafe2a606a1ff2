package processor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/types"
)

type fakeDocStore struct {
	docs       map[string]*models.CVDocument
	candidates map[string]*models.Candidate // keyed by email
	updates    map[string]map[string]interface{}
	nextCandID string
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		docs:       make(map[string]*models.CVDocument),
		candidates: make(map[string]*models.Candidate),
		updates:    make(map[string]map[string]interface{}),
		nextCandID: "cand-1",
	}
}

func (s *fakeDocStore) GetCVDocumentByID(_ context.Context, cvID string) (*models.CVDocument, error) {
	doc, ok := s.docs[cvID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return doc, nil
}

func (s *fakeDocStore) UpdateCVDocumentFields(_ context.Context, cvID string, updates map[string]interface{}) error {
	merged := s.updates[cvID]
	if merged == nil {
		merged = make(map[string]interface{})
	}
	for k, v := range updates {
		merged[k] = v
	}
	s.updates[cvID] = merged
	return nil
}

func (s *fakeDocStore) FindOrCreateCandidate(_ context.Context, name, email, phone string) (*models.Candidate, error) {
	if c, ok := s.candidates[email]; ok {
		return c, nil
	}
	c := &models.Candidate{
		CandidateID:  s.nextCandID,
		PrimaryName:  name,
		PrimaryEmail: email,
		PrimaryPhone: phone,
	}
	s.candidates[email] = c
	return c, nil
}

const sampleCV = `John Smith
john.smith@example.com
+1-555-123-4567

Experience: 5 years

EDUCATION
Bachelor of Computer Science, 2015

SKILLS
Go, Docker, Kubernetes, PostgreSQL
Strong communication and teamwork
`

func TestProcessUploadedCV_HappyPath(t *testing.T) {
	store := newFakeDocStore()
	store.docs["cv-1"] = &models.CVDocument{
		CVID:             "cv-1",
		RawText:          sampleCV,
		ProcessingStatus: constants.CVStatusPendingParsing,
	}

	p := NewCVProcessor(store, nil, "")
	require.NoError(t, p.ProcessUploadedCV(context.Background(), "cv-1"))

	updates := store.updates["cv-1"]
	require.NotNil(t, updates)
	assert.Equal(t, constants.CVStatusParsed, updates["processing_status"])
	assert.Equal(t, "cand-1", updates["candidate_id"])
	assert.Equal(t, constants.DefaultParserVersion, updates["parser_version"])
	assert.NotEmpty(t, updates["raw_text_md5"])

	var profile types.CandidateProfile
	require.NoError(t, json.Unmarshal(updates["profile_json"].([]byte), &profile))
	assert.Equal(t, "John Smith", profile.Name)
	assert.Equal(t, "john.smith@example.com", profile.Email)
	assert.Contains(t, profile.DomainSkills, "go")
	assert.Contains(t, profile.DomainSkills, "docker")
}

func TestProcessUploadedCV_NoContactIdentifier(t *testing.T) {
	store := newFakeDocStore()
	store.docs["cv-1"] = &models.CVDocument{
		CVID:    "cv-1",
		RawText: "A document with skills like Go and Docker but no contact details.",
	}

	p := NewCVProcessor(store, nil, "")
	err := p.ProcessUploadedCV(context.Background(), "cv-1")

	require.ErrorIs(t, err, ErrUnparseable)
	assert.Equal(t, constants.CVStatusParseFailed, store.updates["cv-1"]["processing_status"])
}

func TestProcessUploadedCV_EmptyText(t *testing.T) {
	store := newFakeDocStore()
	store.docs["cv-1"] = &models.CVDocument{CVID: "cv-1"}

	p := NewCVProcessor(store, nil, "")
	err := p.ProcessUploadedCV(context.Background(), "cv-1")

	require.ErrorIs(t, err, ErrUnparseable)
	assert.Equal(t, constants.CVStatusParseFailed, store.updates["cv-1"]["processing_status"])
}

func TestHandleUploadedMessage_AckSemantics(t *testing.T) {
	store := newFakeDocStore()
	store.docs["cv-ok"] = &models.CVDocument{CVID: "cv-ok", RawText: sampleCV}
	store.docs["cv-bad"] = &models.CVDocument{CVID: "cv-bad", RawText: "no identifiers here"}

	p := NewCVProcessor(store, nil, "")
	handle := p.HandleUploadedMessage(context.Background())

	// Undecodable message bodies are dropped.
	assert.True(t, handle([]byte("not json")))

	okMsg, _ := json.Marshal(map[string]string{"cv_id": "cv-ok"})
	assert.True(t, handle(okMsg))

	// Permanently unparseable documents are acked, not redelivered.
	badMsg, _ := json.Marshal(map[string]string{"cv_id": "cv-bad"})
	assert.True(t, handle(badMsg))

	// A missing document is a transient condition: nack for redelivery.
	missingMsg, _ := json.Marshal(map[string]string{"cv_id": "cv-missing"})
	assert.False(t, handle(missingMsg))
}
