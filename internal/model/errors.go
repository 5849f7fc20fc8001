package model

import (
	"github.com/pkg/errors"
)

var (
	ErrConfig      = errors.New("configuration error")
	ErrTransport   = errors.New("transport error")
	ErrAuth        = errors.New("authentication error")
	ErrRateLimited = errors.New("rate limited")
	ErrValidation  = errors.New("validation error")
	ErrSubmission  = errors.New("activity submission error")
	ErrPoll        = errors.New("activity poll error")
	ErrDecode      = errors.New("response decode error")
	ErrStatus      = errors.New("unexpected response status")
)
