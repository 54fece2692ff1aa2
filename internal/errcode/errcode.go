// Package errcode defines the closed set of business result codes.
//
// Operations against the ledger and credential stores report expected
// outcomes as small negative integers; zero or a non-negative payload
// means success. These codes travel inside command results and across the
// API boundary, so their numeric values are part of the persisted and
// public contract and must never be renumbered.
//
// Codes are for expected business outcomes only. Engine failures (log
// append errors, corrupt snapshots) are Go errors and abort the process;
// see the journal package.
package errcode

import "fmt"

// Code is a business result code. Negative values are failures.
type Code int32

const (
	// OK is success.
	OK Code = 0

	Failed             Code = -1
	Expired            Code = -2
	NotFound           Code = -3
	AlreadyExists      Code = -4
	LimitReached       Code = -5
	NotTrusted         Code = -6
	InsufficientFunds  Code = -7
	InsufficientAmount Code = -8
	InvalidAmount      Code = -9
	NothingToDo        Code = -10
	Forbidden          Code = -11
	TooManyRequests    Code = -12

	InvalidSource           Code = -50
	InvalidDestination      Code = -51
	SourceLimitReached      Code = -52
	DestinationLimitReached Code = -53

	EmptyName    Code = -100
	EmptyProfile Code = -101
)

var names = map[Code]string{
	OK:                      "OK",
	Failed:                  "FAILED",
	Expired:                 "EXPIRED",
	NotFound:                "NOT_FOUND",
	AlreadyExists:           "ALREADY_EXISTS",
	LimitReached:            "LIMIT_REACHED",
	NotTrusted:              "NOT_TRUSTED",
	InsufficientFunds:       "INSUFFICIENT_FUNDS",
	InsufficientAmount:      "INSUFFICIENT_AMOUNT",
	InvalidAmount:           "INVALID_AMOUNT",
	NothingToDo:             "NOTHING_TO_DO",
	Forbidden:               "FORBIDDEN",
	TooManyRequests:         "TOO_MANY_REQUESTS",
	InvalidSource:           "INVALID_SOURCE",
	InvalidDestination:      "INVALID_DESTINATION",
	SourceLimitReached:      "SOURCE_LIMIT_REACHED",
	DestinationLimitReached: "DESTINATION_LIMIT_REACHED",
	EmptyName:               "EMPTY_NAME",
	EmptyProfile:            "EMPTY_PROFILE",
}

// String returns the symbolic name of the code.
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int32(c))
}

// IsError reports whether the code is a failure.
func (c Code) IsError() bool {
	return c < 0
}
