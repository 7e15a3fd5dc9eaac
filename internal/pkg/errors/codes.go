package errors

// Error code constants. Errors carry code + message; the code is the stable
// machine-readable contract, the message is for humans.

// Dependency graph error codes.
const (
	CodeSelfDependency      = "SELF_DEPENDENCY"
	CodeDuplicateDependency = "DUPLICATE_DEPENDENCY"
	CodeCyclicDependency    = "CYCLIC_DEPENDENCY"
)

// Status transition error codes.
const (
	CodeInvalidReleaseTransition  = "INVALID_RELEASE_TRANSITION"
	CodeInvalidPlanningTransition = "INVALID_PLANNING_TRANSITION"
)

// Event log error codes.
const (
	CodeEventNotFound    = "EVENT_NOT_FOUND"
	CodeUnknownEventType = "UNKNOWN_EVENT_TYPE"
	CodeEventAppendFail  = "EVENT_APPEND_FAILED"
)

// Idempotency error codes. A replayed operation is not an error: commands
// report it through the result, so no code exists for it.
const (
	CodeDedupUnavailable = "DEDUP_STORE_UNAVAILABLE"
)

// Entity error codes.
const (
	CodeFeatureNotFound = "FEATURE_NOT_FOUND"
	CodeReleaseNotFound = "RELEASE_NOT_FOUND"
)

// Validation error codes.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeInvalidRequestField = "INVALID_REQUEST_FIELD"
)
