package model

import "errors"

var (
	// ErrInvalidInput marks a malformed or unordered price sequence.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientHistory means fewer bars than the oscillator window.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrDataUnavailable means a collaborator could not supply history or valuation.
	ErrDataUnavailable = errors.New("data unavailable")
)
