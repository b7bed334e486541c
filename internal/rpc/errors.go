package rpc

import (
	"context"
	"errors"
	"net/http"

	"github.com/bufbuild/connect-go"

	"github.com/animus-coder/codesmith/internal/extract"
	"github.com/animus-coder/codesmith/internal/session"
	"github.com/animus-coder/codesmith/internal/tools"
)

// HTTPStatus maps domain errors onto response codes.
func HTTPStatus(err error) int {
	var buildErr *tools.ToolBuildError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrCodeReaderDisabled):
		return http.StatusConflict
	case errors.Is(err, tools.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, tools.ErrConfiguration):
		return http.StatusBadRequest
	case errors.As(err, &buildErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, extract.ErrExtraction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ConnectCode maps domain errors onto Connect codes.
func ConnectCode(err error) connect.Code {
	switch HTTPStatus(err) {
	case http.StatusNotFound:
		return connect.CodeNotFound
	case http.StatusConflict:
		return connect.CodeFailedPrecondition
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return connect.CodeInvalidArgument
	case http.StatusBadGateway:
		return connect.CodeUnavailable
	}
	if errors.Is(err, context.Canceled) {
		return connect.CodeCanceled
	}
	return connect.CodeInternal
}

// ErrorMessage is the user-facing text of err.
func ErrorMessage(err error) string {
	if errors.Is(err, extract.ErrExtraction) {
		return extract.TerminalMessage
	}
	return err.Error()
}
