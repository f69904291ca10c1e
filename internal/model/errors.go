package model

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput is returned when an upload cannot be parsed as a composite document.
	ErrMalformedInput = errors.New("malformed input document")

	// ErrSplitPersistence is returned when storing a split page fails.
	ErrSplitPersistence = errors.New("split persistence failed")

	// ErrEmptyBindingSet is returned by dispatch when no bindings are given.
	ErrEmptyBindingSet = errors.New("empty binding set")

	// ErrDuplicateRecipient matches any *DuplicateRecipientError.
	ErrDuplicateRecipient = errors.New("duplicate recipient")

	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrBlobNotFound      = errors.New("blob not found")
	ErrDispatchNotFound  = errors.New("dispatch run not found")

	// ErrInvalidRecipient is returned for identities that are not email addresses.
	ErrInvalidRecipient = errors.New("invalid recipient address")

	// ErrTransportMisconfigured is returned before any send when the mail
	// transport cannot possibly deliver.
	ErrTransportMisconfigured = errors.New("mail transport misconfigured")
)

// DuplicateRecipientError reports the first recipient bound more than once.
type DuplicateRecipientError struct {
	Recipient string
}

func (e *DuplicateRecipientError) Error() string {
	return fmt.Sprintf("duplicate recipient: %s is bound to more than one artifact", e.Recipient)
}

func (e *DuplicateRecipientError) Is(target error) bool {
	return target == ErrDuplicateRecipient
}
