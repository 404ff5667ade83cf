package state

import "errors"

var (
	ErrCharacterNotFound = errors.New("character not found")
	ErrGroupNotFound     = errors.New("group not found")
	ErrInvalidName       = errors.New("name must not be blank")
	ErrUnknownMember     = errors.New("group member does not exist")
	ErrInvalidSettings   = errors.New("invalid settings")
)
