package email

import "errors"

// ErrInvalidArgument is matched by every error returned for input that the
// message setters cannot accept.
var ErrInvalidArgument = errors.New("invalid argument")

// InvalidArgumentError reports an input value of a shape the message cannot
// normalize. It is a programming error, not a transient condition.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Reason
}

// Is reports whether target is ErrInvalidArgument.
func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func invalid(reason string) error {
	return &InvalidArgumentError{Reason: reason}
}

const (
	reasonSender     = "unsupported sender type"
	reasonRecipient  = "unsupported recipient type"
	reasonAttachment = "unsupported attachment type"
	reasonResource   = "unsupported resource type"
)
