// Package errs defines the error taxonomy shared by the chat client packages.
//
// Crypto and Protocol errors are scoped to a single frame and never end a
// session. Transport errors close the connection. Resource and Collaborator
// errors only affect the feature that raised them.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how callers are expected to react to it.
type Kind uint8

const (
	Other Kind = iota
	Crypto
	Protocol
	Transport
	Resource
	Collaborator
)

func (k Kind) String() string {
	switch k {
	case Crypto:
		return "crypto"
	case Protocol:
		return "protocol"
	case Transport:
		return "transport"
	case Resource:
		return "resource"
	case Collaborator:
		return "collaborator"
	default:
		return "other"
	}
}

// Error is a classified error carrying the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation name. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// KindOf returns the outermost kind found in err's chain, or Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}
