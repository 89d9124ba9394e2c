package eventpage

import "errors"

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrDuplicateSlug        = errors.New("duplicate slug")
	ErrUnknownTemplate      = errors.New("unknown template")
	ErrInvalidTitle         = errors.New("invalid title")
	ErrInvalidOwner         = errors.New("invalid owner")
	ErrInvalidDateRange     = errors.New("invalid date range")
	ErrInvalidCustomStyles  = errors.New("invalid custom styles")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
