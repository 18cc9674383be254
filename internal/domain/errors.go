package domain

import "errors"

var (
	ErrTaskExists         = errors.New("a task with this name already exists")
	ErrTaskNotFound       = errors.New("task not found")
	ErrServiceUnavailable = errors.New("answer service unreachable")
	ErrStorage            = errors.New("storage error")
	ErrTransport          = errors.New("transport error")
	ErrInvalidInput       = errors.New("invalid task parameters")
	ErrDateParse          = errors.New("date parsing error")
	ErrPermissionDenied   = errors.New("permission denied")
)
