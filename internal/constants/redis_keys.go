package constants

// Redis key prefixes and formats.
// Naming convention: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix is the shared prefix for every Redis key.
	AppPrefix = "app"

	// JobModulePrefix covers job-derived data.
	JobModulePrefix = "job"
	// EvalModulePrefix covers evaluation runs.
	EvalModulePrefix = "eval"

	// EntityRequirements holds parsed job requirements.
	EntityRequirements = "requirements"
	// EntityLock is the distributed lock entity.
	EntityLock = "lock"

	// KeyJobRequirements caches derived JobRequirements (STRING, JSON).
	// Format: app:job:requirements:{jobID}:{textMD5}
	KeyJobRequirements = AppPrefix + ":" + JobModulePrefix + ":" + EntityRequirements + ":%s:%s"

	// KeyEvaluationLock serializes the read-check-then-write of an
	// evaluation record per (job, cv) pair (STRING).
	// Format: app:eval:lock:{jobID}:{cvID}
	KeyEvaluationLock = AppPrefix + ":" + EvalModulePrefix + ":" + EntityLock + ":%s:%s"
)
