package companion

import "errors"

var (
	// ErrGeneration means the model call failed, returned nothing, or was blocked.
	ErrGeneration = errors.New("generation failed")
	// ErrSummarization is soft; callers fall back to truncation.
	ErrSummarization = errors.New("summarization failed")
	// ErrAffinityUpdate is soft; the score stays unchanged.
	ErrAffinityUpdate = errors.New("affinity update failed")
	// ErrPersistence is logged and not retried.
	ErrPersistence = errors.New("persistence failed")
	// ErrDelivery wraps any failure to send a message to the user.
	ErrDelivery = errors.New("delivery failed")
	// ErrRecipientNotFound is returned by a Sender when the user does not exist.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrRecipientForbidden is returned by a Sender when the user blocks DMs.
	ErrRecipientForbidden = errors.New("recipient forbids direct messages")
	// ErrTimerTask marks a debounce task that died with a panic.
	ErrTimerTask = errors.New("debounce task failed")
	// ErrUserBusy means the user has a batch pending or in flight.
	ErrUserBusy = errors.New("user busy")
)
