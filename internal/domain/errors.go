package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrFireNotFound            = errors.New("fire not found")
	ErrResponderNotFound       = errors.New("responder not found")
	ErrNoResponderAvailable    = errors.New("no responder available")
	ErrDispatchTimeout         = errors.New("dispatch query timed out")
	ErrMalformedPayload        = errors.New("malformed payload")
	ErrUnknownSubject          = errors.New("unknown subject")
	ErrConsumerConfigMismatch  = errors.New("consumer exists with a different configuration")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)
