package event

import "errors"

var (
	ErrInvalidProjectID = errors.New("invalid project id")

	ErrInvalidEventName = errors.New("invalid event name")

	ErrInvalidUserID = errors.New("invalid user id")

	ErrInvalidTimestamp = errors.New("invalid event timestamp")
)
