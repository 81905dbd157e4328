package core

import "errors"

// Code is a caller-visible verification or settlement error code
type Code string

const (
	CodeNone               Code = ""
	CodeInvalidPayload     Code = "INVALID_PAYLOAD"
	CodePayloadExpired     Code = "PAYLOAD_EXPIRED"
	CodeWrongNetwork       Code = "WRONG_NETWORK"
	CodeInvalidSignature   Code = "INVALID_SIGNATURE"
	CodeWrongRecipient     Code = "WRONG_RECIPIENT"
	CodeWrongToken         Code = "WRONG_TOKEN"
	CodeInsufficientAmount Code = "INSUFFICIENT_AMOUNT"
	CodeReplayDetected     Code = "REPLAY_DETECTED"
	CodeSettlementError    Code = "SETTLEMENT_ERROR"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

var (
	ErrDuplicateEntry         = errors.New("ledger entry already exists")
	ErrNotFound               = errors.New("not found")
	ErrNotPending             = errors.New("ledger entry is not pending")
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")
	ErrSettlementTimeout      = errors.New("settlement timed out")
	ErrUnsupportedNetwork     = errors.New("unsupported network")
	ErrInvalidToken           = errors.New("invalid token")
	ErrTokenExpired           = errors.New("token has expired")
)
