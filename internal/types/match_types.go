package types

import "time"

// EducationLevel values derived from JD text.
const (
	EducationNone      = "NONE"
	EducationAssociate = "ASSOCIATE"
	EducationBachelor  = "BACHELOR"
	EducationMaster    = "MASTER"
	EducationPHD       = "PHD"
)

// Seniority values derived from JD text.
const (
	SeniorityJunior = "JUNIOR"
	SeniorityMid    = "MID_LEVEL"
	SenioritySenior = "SENIOR"
)

// JobRequirements is the structured form of a job description. It is derived
// once per JD text and re-derived only when the text changes.
type JobRequirements struct {
	SchemaVersion string `json:"schema_version"`

	// Skills are lower-cased and deduplicated, discovery order preserved.
	Skills             []string `json:"skills"`
	MinExperienceYears *int     `json:"min_experience_years,omitempty"`
	EducationLevel     string   `json:"education_level,omitempty"`
	Seniority          string   `json:"seniority,omitempty"`
}

// CandidateProfile is the structured form of a CV. Derived once per upload
// and immutable afterwards; a re-upload creates a new profile.
type CandidateProfile struct {
	SchemaVersion string `json:"schema_version"`

	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`

	TotalExperienceYears *int   `json:"total_experience_years,omitempty"`
	HighestDegree        string `json:"highest_degree,omitempty"`
	GraduationYear       *int   `json:"graduation_year,omitempty"`

	DomainSkills []string `json:"domain_skills"`
	SoftSkills   []string `json:"soft_skills"`
}

// FeatureVector is the fixed 16-field numeric encoding of a
// (JobRequirements, CandidateProfile) pair consumed by the scoring model.
// Field names follow the model service wire contract.
type FeatureVector struct {
	// Skill features
	SkillJaccard      float64 `json:"skill_jaccard"`
	SkillCoverage     float64 `json:"skill_coverage"`
	SkillPrecision    float64 `json:"skill_precision"`
	SkillOverlapCount int     `json:"skill_overlap_count"`
	JobSkillsCount    int     `json:"job_skills_count"`
	CVSkillsCount     int     `json:"cv_skills_count"`

	// Experience features
	ExperienceGap         float64 `json:"experience_gap"`
	ExperienceRatio       float64 `json:"experience_ratio"`
	ExperienceMatch       int     `json:"experience_match"`
	JobExperienceRequired float64 `json:"job_experience_required"`
	CVExperienceYears     float64 `json:"cv_experience_years"`

	// Education features
	EducationGap      int `json:"education_gap"`
	EducationMatch    int `json:"education_match"`
	JobEducationLevel int `json:"job_education_level"`
	CVEducationLevel  int `json:"cv_education_level"`

	// Seniority feature
	SeniorityMatchScore int `json:"seniority_match_score"`
}

// Prediction is a single score/confidence pair from the model service.
type Prediction struct {
	Score      float64  `json:"score"`
	Confidence *float64 `json:"confidence"`
}

// PredictionRequest is the body of POST /predict.
type PredictionRequest struct {
	Features []FeatureVector `json:"features"`
}

// PredictionResponse is the model service answer for a prediction batch.
type PredictionResponse struct {
	Predictions  []Prediction `json:"predictions"`
	ModelVersion string       `json:"model_version"`
	Timestamp    string       `json:"timestamp"`
	Count        int          `json:"count"`
}

// FirstPrediction returns the first entry, or nil for an empty batch.
func (r *PredictionResponse) FirstPrediction() *Prediction {
	if r == nil || len(r.Predictions) == 0 {
		return nil
	}
	return &r.Predictions[0]
}

// CandidateScore is one ranked entry in an evaluation response.
type CandidateScore struct {
	CandidateID    string   `json:"candidate_id"`
	CandidateName  string   `json:"candidate_name"`
	CandidateEmail string   `json:"candidate_email"`
	CVID           string   `json:"cv_id"`
	Score          float64  `json:"score"`
	Rank           int      `json:"rank"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Status         string   `json:"status"`
	ErrorMessage   string   `json:"error_message,omitempty"`
}

// EvaluationResponse is the persisted batch surface exposed to callers.
type EvaluationResponse struct {
	EvaluationID string           `json:"evaluation_id,omitempty"`
	JobID        string           `json:"job_id"`
	JobTitle     string           `json:"job_title"`
	Candidates   []CandidateScore `json:"candidates"`

	TotalEvaluated int `json:"total_evaluated"`
	SuccessCount   int `json:"success_count"`
	FailureCount   int `json:"failure_count"`

	EvaluatedAt  time.Time `json:"evaluated_at"`
	ModelVersion string    `json:"model_version"`
	// ModelVersionsMixed is set when cached records from an older model
	// version appear alongside fresh scores in the same ranking.
	ModelVersionsMixed bool   `json:"model_versions_mixed,omitempty"`
	EvaluatedBy        string `json:"evaluated_by"`
}
