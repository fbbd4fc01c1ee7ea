package analyzer

import "errors"

var (
	// ErrNotInitialized is returned by Analyze and Close outside the Ready state.
	ErrNotInitialized = errors.New("analyzer not initialized")
	// ErrLoad wraps every failure of Load.
	ErrLoad = errors.New("analyzer load failed")
	// ErrInference wraps engine and decode failures of Analyze.
	ErrInference = errors.New("inference failed")
)
