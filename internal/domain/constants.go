package domain

// Payment record states. Transitions are forward-only:
// pending -> completed or pending -> failed, never out of a terminal state.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

const Currency = "INR"
