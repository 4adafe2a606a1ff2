package constants

import "time"

const (
	// SchemaVersion tags serialized requirement/profile/feature blobs so that
	// drift between stored and freshly computed attributes is detectable.
	SchemaVersion = "1"

	// DefaultParserVersion records which heuristic parser produced a profile.
	DefaultParserVersion = "heuristic-1.0"

	// JDRequirementsCacheDuration bounds how long derived job requirements
	// stay in Redis before the next request re-derives them.
	JDRequirementsCacheDuration = 24 * time.Hour

	// EvaluationLockTTL caps how long a per-(job,cv) evaluation lock can be
	// held before it expires on its own.
	EvaluationLockTTL = 30 * time.Second

	// ModelVersionEmpty is reported when a run selected no candidates and no
	// scoring call was made.
	ModelVersionEmpty = "N/A"
)

// Processing status values for uploaded CVs.
const (
	CVStatusPendingParsing = "PENDING_PARSING"
	CVStatusParsed         = "PARSED"
	CVStatusParseFailed    = "PARSE_FAILED"
)

// Evaluation record status values.
const (
	EvaluationStatusSuccess = "SUCCESS"
	EvaluationStatusFailed  = "FAILED"
)
