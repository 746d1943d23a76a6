package rpc

import (
	"errors"
	"net/http"

	ledgererrors "prizechain/core/errors"
	"prizechain/core/types"
	"prizechain/native/bounty"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeForbidden      = -32003
	codeRateLimited    = -32020
)

func invalidParams(message string) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: message}
}

// toRPCError maps a ledger or program failure to an error carrying its
// stable code and verbatim name. Other errors become server errors.
func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if kind, ok := bounty.AsError(err); ok {
		return &RPCError{
			Code:    kind.ErrorCode(),
			Message: kind.ErrorName(),
			Data:    &ErrorData{Name: kind.ErrorName(), Detail: err.Error()},
		}
	}
	if kind, ok := ledgererrors.Classify(err); ok {
		return &RPCError{
			Code:    kind.Code,
			Message: kind.Name,
			Data:    &ErrorData{Name: kind.Name, Detail: err.Error(), Retryable: kind.Retryable},
		}
	}
	return &RPCError{Code: codeServerError, Message: "internal error", Data: err.Error()}
}

// receiptRPCError surfaces a failed receipt.
func receiptRPCError(receipt *types.Receipt) *RPCError {
	re := receipt.Error
	if re == nil {
		re = &types.ReceiptError{Code: 1, Name: "InternalError", Message: "transaction failed"}
	}
	return &RPCError{
		Code:    re.Code,
		Message: re.Name,
		Data: &ErrorData{
			Name:        re.Name,
			Detail:      re.Message,
			Retryable:   re.Retryable,
			Instruction: re.Instruction,
			Signature:   receipt.Signature.String(),
		},
	}
}

// httpStatus picks the HTTP status of an error response. Domain failures
// are delivered with 200 like any other JSON-RPC error.
func httpStatus(err *RPCError) int {
	switch err.Code {
	case codeParseError, codeInvalidRequest:
		return http.StatusBadRequest
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeForbidden:
		return http.StatusForbidden
	case codeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusOK
	}
}
