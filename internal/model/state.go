package model

// SendState is where a single submission ended up.
type SendState string

const (
	StateIdle           SendState = "idle"
	StateSending        SendState = "sending"
	StateSuccess        SendState = "success"
	StateError          SendState = "error"
	StateSessionInvalid SendState = "session_invalid"
)

type Warning string

const (
	// WarnConfirmPending means delivery succeeded but the message could not be
	// marked sent; the credit stays consumed.
	WarnConfirmPending Warning = "confirm_pending"
	// WarnRefundQueued means the refund did not go through inline and was
	// handed to the retry queue.
	WarnRefundQueued Warning = "refund_queued"
)
