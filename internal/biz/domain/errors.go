package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPermission means the bot lacks elevated rights in the conversation
	ErrPermission = errors.New("bot lacks conversation admin rights")

	// ErrEmptyGeneration means the generative service returned no text
	ErrEmptyGeneration = errors.New("empty generation")

	// ErrUnknownAccount means no transport is registered for the account key
	ErrUnknownAccount = errors.New("unknown transport account")

	// ErrRateLimited means the AI call budget is exhausted
	ErrRateLimited = errors.New("ai call budget exhausted")

	// ErrDuplicateCommand is returned when two commands claim the same token
	ErrDuplicateCommand = errors.New("duplicate command token")

	// ErrBlocked is matched by every *BlockedError
	ErrBlocked = errors.New("generation blocked")
)

// BlockedError is returned when the generative service refuses a prompt
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("generation blocked: %s", e.Reason)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}
