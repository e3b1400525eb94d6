package consensus

import (
	"errors"
	"fmt"

	"Casper/internal/message"
)

// ErrInvalidArgument is returned for inputs no honest or byzantine sender
// could produce, such as the zero hash or a justification cycle.
var ErrInvalidArgument = errors.New("invalid argument")

// Sentinels for each byzantine fault kind.
var (
	ErrIncorrectEstimate            = errors.New("estimate does not follow from justification")
	ErrDuplicateJustificationSender = errors.New("justification holds several messages from one sender")
	ErrOmittedOwnHistory            = errors.New("sender omitted its previous message")
	ErrUnknownInitialMessage        = errors.New("initial message differs from the known one")
	ErrHistoryFork                  = errors.New("fork in message history")
)

// FaultKind identifies a protocol violation.
type FaultKind uint8

const (
	FaultIncorrectEstimate FaultKind = iota + 1
	FaultDuplicateJustificationSender
	FaultOmittedOwnHistory
	FaultUnknownInitialMessage
	FaultHistoryFork
)

// String returns the metric label for k.
func (k FaultKind) String() string {
	switch k {
	case FaultIncorrectEstimate:
		return "incorrect_estimate"
	case FaultDuplicateJustificationSender:
		return "duplicate_justification_sender"
	case FaultOmittedOwnHistory:
		return "omitted_own_history"
	case FaultUnknownInitialMessage:
		return "unknown_initial_message"
	case FaultHistoryFork:
		return "history_fork"
	default:
		return "unknown"
	}
}

// sentinel returns the error matched by errors.Is for k.
func (k FaultKind) sentinel() error {
	switch k {
	case FaultIncorrectEstimate:
		return ErrIncorrectEstimate
	case FaultDuplicateJustificationSender:
		return ErrDuplicateJustificationSender
	case FaultOmittedOwnHistory:
		return ErrOmittedOwnHistory
	case FaultUnknownInitialMessage:
		return ErrUnknownInitialMessage
	case FaultHistoryFork:
		return ErrHistoryFork
	default:
		return nil
	}
}

// ByzantineError reports a message that violates the protocol.
// The sender is flagged permanently and the message is neither trusted
// nor promoted to latest.
type ByzantineError struct {
	Kind   FaultKind
	Sender string
	Hash   message.Hash // Hash is the offending message
}

func (e *ByzantineError) Error() string {
	return fmt.Sprintf("byzantine sender %s in message %s: %v", e.Sender, e.Hash.Short(), e.Kind.sentinel())
}

func (e *ByzantineError) Unwrap() error {
	return e.Kind.sentinel()
}

// IsByzantine reports whether err carries a *ByzantineError.
func IsByzantine(err error) bool {
	var be *ByzantineError
	return errors.As(err, &be)
}
