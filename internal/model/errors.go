package model

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStorageFault    = errors.New("storage fault")
	ErrIOFailure       = errors.New("io failure")
)
