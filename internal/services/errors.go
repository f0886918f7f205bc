// Package services defines the business logic of the puzzle exchange: the
// puzzle lifecycle, messaging, the request/approve/decline negotiation, the
// puzzle catalog and users.
//
// This file centralizes the typed service error. Every failure a caller may
// want to branch on carries a Kind; translation into HTTP status codes is
// performed at the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure.
type Kind string

const (
	KindInvalidState Kind = "invalid_state"
	KindNotOwner     Kind = "not_owner"
	KindNotRecipient Kind = "not_recipient"
	KindNotParty     Kind = "not_party"
	KindEmptyContent Kind = "empty_content"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInvalid      Kind = "invalid"
)

// Error is the structured failure returned by service operations.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels below can be used
// with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// Sentinels, one per kind.
var (
	// ErrInvalidState: the puzzle is not in a state that permits the operation.
	ErrInvalidState = &Error{Kind: KindInvalidState, Msg: "operation not allowed in the current puzzle state"}

	// ErrNotOwner: the actor is not the puzzle's current owner.
	ErrNotOwner = &Error{Kind: KindNotOwner, Msg: "not the puzzle owner"}

	// ErrNotRecipient: only the recipient may mark a message read.
	ErrNotRecipient = &Error{Kind: KindNotRecipient, Msg: "not the message recipient"}

	// ErrNotParty: the actor is neither sender nor recipient.
	ErrNotParty = &Error{Kind: KindNotParty, Msg: "not a party to this message"}

	// ErrEmptyContent: a user-authored message has no content.
	ErrEmptyContent = &Error{Kind: KindEmptyContent, Msg: "message content is empty"}

	// ErrNotFound: a referenced puzzle, user or message does not exist.
	ErrNotFound = &Error{Kind: KindNotFound, Msg: "not found"}

	// ErrConflict: a unique constraint (username, email) rejected the write.
	ErrConflict = &Error{Kind: KindConflict, Msg: "already exists"}

	// ErrInvalidInput: input failed validation.
	ErrInvalidInput = &Error{Kind: KindInvalid, Msg: "invalid input"}
)

func newErr(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not a service error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
