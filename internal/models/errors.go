package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound = errors.New("resource not found") // General not found

	// Graph Consistency Errors
	ErrInvalidReference   = errors.New("referenced entity does not exist")
	ErrTransactionAborted = errors.New("transaction aborted, all changes rolled back")

	// Traversal Errors
	ErrNotStarted   = errors.New("story not started for this user")
	ErrInvalidState = errors.New("submitted event is not the current event")

	// General Request Errors
	ErrUnauthorized = errors.New("unauthorized") // Authentication required or failed
	ErrBadRequest   = errors.New("bad request")

	// Token Errors
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")
)
