package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Candidate is the canonical person record. A candidate may have several CV
// documents over time; email and phone are the dedup identifiers.
type Candidate struct {
	CandidateID  string    `gorm:"type:char(36);primaryKey"`
	PrimaryName  string    `gorm:"type:varchar(255)"`
	PrimaryEmail string    `gorm:"type:varchar(255);uniqueIndex:idx_candidates_primary_email_unique"`
	PrimaryPhone string    `gorm:"type:varchar(50);uniqueIndex:idx_candidates_primary_phone_unique"`
	CreatedAt    time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt    time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// Job holds the posting text plus the parsed requirements snapshot.
// RequirementsJSON carries a schema_version field so older snapshots stay
// readable after the parser evolves; RequirementsTextMD5 ties the snapshot to
// the exact description text it was parsed from.
type Job struct {
	JobID               string         `gorm:"type:char(36);primaryKey"`
	JobTitle            string         `gorm:"type:varchar(255);not null"`
	Department          string         `gorm:"type:varchar(255)"`
	Location            string         `gorm:"type:varchar(255)"`
	DescriptionText     string         `gorm:"type:text;not null"`
	RequirementsJSON    datatypes.JSON `gorm:"type:json"`
	RequirementsTextMD5 string         `gorm:"type:char(32)"`
	Status              string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_jobs_status"`
	CreatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// CVDocument is one uploaded CV. The extracted raw text and the parsed
// profile snapshot live here; the candidate link is filled in once parsing
// discovers an email or phone.
type CVDocument struct {
	CVID             string         `gorm:"type:char(36);primaryKey"`
	CandidateID      *string        `gorm:"type:char(36);index:idx_cv_candidate_id"`
	OriginalFilename string         `gorm:"type:varchar(255)"`
	ContentType      string         `gorm:"type:varchar(100)"`
	RawText          string         `gorm:"type:mediumtext"`
	RawTextMD5       string         `gorm:"type:char(32);index:idx_cv_raw_text_md5"`
	ProfileJSON      datatypes.JSON `gorm:"type:json"`
	ParserVersion    string         `gorm:"type:varchar(50)"`
	ProcessingStatus string         `gorm:"type:varchar(50);default:'PENDING_PARSING';index:idx_cv_processing_status"`
	UploadedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_cv_uploaded_at"`
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (CVDocument) TableName() string {
	return "cv_documents"
}

// EvaluationRecord is the scoring outcome for one (job, cv) pair. The unique
// index makes the pair the cache key: a later evaluation of the same pair
// reuses a SUCCESS row instead of calling the model again. FeaturesJSON keeps
// the exact vector that was scored for auditability.
type EvaluationRecord struct {
	RecordID     uint64         `gorm:"primaryKey;autoIncrement"`
	JobID        string         `gorm:"type:char(36);not null;uniqueIndex:idx_eval_job_cv_unique,priority:1;index:idx_eval_job_id_score,priority:1"`
	CVID         string         `gorm:"type:char(36);not null;uniqueIndex:idx_eval_job_cv_unique,priority:2"`
	CandidateID  string         `gorm:"type:char(36);not null;index:idx_eval_candidate_id"`
	FeaturesJSON datatypes.JSON `gorm:"type:json"`
	Score        *float64       `gorm:"type:double;index:idx_eval_job_id_score,priority:2"`
	Confidence   *float64       `gorm:"type:double"`
	ModelVersion string         `gorm:"type:varchar(100)"`
	Status       string         `gorm:"type:varchar(50);not null;index:idx_eval_status"`
	FailureKind  string         `gorm:"type:varchar(50)"`
	EvaluatedAt  time.Time      `gorm:"type:datetime(6);not null"`
	CreatedAt    time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt    time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Job *Job        `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CV  *CVDocument `gorm:"foreignKey:CVID;references:CVID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (EvaluationRecord) TableName() string {
	return "evaluation_records"
}

// EvaluationBatch is one evaluation run for a job: the ranked candidate list
// as returned to the caller, frozen as JSON so history endpoints can replay
// the exact response.
type EvaluationBatch struct {
	BatchID            string         `gorm:"type:char(36);primaryKey"`
	JobID              string         `gorm:"type:char(36);not null;index:idx_batch_job_id_evaluated_at,priority:1"`
	RequestedBy        string         `gorm:"type:varchar(255)"`
	RankedResultsJSON  datatypes.JSON `gorm:"type:json"`
	TotalEvaluated     int            `gorm:"not null"`
	SuccessCount       int            `gorm:"not null"`
	FailureCount       int            `gorm:"not null"`
	ModelVersion       string         `gorm:"type:varchar(100)"`
	ModelVersionsMixed bool           `gorm:"default:false"`
	EvaluatedAt        time.Time      `gorm:"type:datetime(6);not null;index:idx_batch_job_id_evaluated_at,priority:2"`
	CreatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Job *Job `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (EvaluationBatch) TableName() string {
	return "evaluation_batches"
}

// ToJSON marshals any value into a datatypes.JSON column value.
func ToJSON(v interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
