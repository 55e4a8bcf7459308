package audithook

// Action constants for audit events.
const (
	// Payment actions
	ActionPaymentSubmitted = "payment.submitted"
	ActionPaymentRecorded  = "payment.recorded"
	ActionPaymentFailed    = "payment.failed"

	// Feed actions
	ActionFeedPublished = "feed.published"
	ActionFeedLost      = "feed.lost"

	// View actions
	ActionViewRefreshFailed = "view.refresh_failed"
)

// Resource constants for audit events.
const (
	ResourcePayment = "payment"
	ResourceFeed    = "feed"
	ResourceView    = "view"
)

// Category constants for audit events.
const (
	CategoryPayment     = "payment"
	CategoryIntegration = "integration"
	CategoryAccess      = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
