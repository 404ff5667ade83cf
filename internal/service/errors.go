package service

import "errors"

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrEmptyReply   = errors.New("reply was empty after cleanup")
	ErrEmptyChat    = errors.New("chat has no messages")
	ErrUnknownChat  = errors.New("chat not found")
)
