package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeSchema     Code = "SCHEMA_ERROR"
	CodeEmptyInput Code = "EMPTY_INPUT"
	CodeNumeric    Code = "NUMERIC_ERROR"
	CodeValidation Code = "VALIDATION_ERROR"
	CodeDependency Code = "DEPENDENCY_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// Metadata describes how a code surfaces to operators: process exit status for
// the CLI, HTTP status for the worker endpoints, and whether a rerun can help.
type Metadata struct {
	HTTPStatus     int
	ExitCode       int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeSchema: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		ExitCode:       3,
		Retryable:      false,
		PublicMessage:  "input schema mismatch",
		DetailsAllowed: true,
	},
	CodeEmptyInput: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		ExitCode:       4,
		Retryable:      false,
		PublicMessage:  "no input rows to process",
		DetailsAllowed: true,
	},
	CodeNumeric: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		ExitCode:       5,
		Retryable:      false,
		PublicMessage:  "non-numeric or non-finite values",
		DetailsAllowed: true,
	},
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		ExitCode:       2,
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeDependency: {
		HTTPStatus:    http.StatusServiceUnavailable,
		ExitCode:      6,
		Retryable:     true,
		PublicMessage: "dependency unavailable",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		ExitCode:      1,
		Retryable:     false,
		PublicMessage: "resource not found",
	},
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		ExitCode:      1,
		Retryable:     true,
		PublicMessage: "a pipeline run is already in progress",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		ExitCode:      1,
		Retryable:     true,
		PublicMessage: "internal error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	stage   string
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

// Stage names the pipeline step that produced the error, if any.
func (e *Error) Stage() string {
	if e == nil {
		return ""
	}
	return e.stage
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

// WithStage tags the error with a stage name. An existing tag is kept so the
// innermost stage wins when errors bubble through nested runners.
func (e *Error) WithStage(stage string) *Error {
	if e == nil {
		return nil
	}
	if e.stage == "" {
		e.stage = stage
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	prefix := string(e.code)
	if e.stage != "" {
		prefix = fmt.Sprintf("%s [%s]", e.code, e.stage)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the outermost typed error in the chain, or
// CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// IsCode reports whether any typed error in the chain carries code.
func IsCode(err error, code Code) bool {
	for err != nil {
		var typed *Error
		if !stdErrors.As(err, &typed) {
			return false
		}
		if typed.code == code {
			return true
		}
		err = typed.cause
	}
	return false
}

// StageOf returns the first stage tag found along the chain.
func StageOf(err error) string {
	for err != nil {
		var typed *Error
		if !stdErrors.As(err, &typed) {
			return ""
		}
		if typed.stage != "" {
			return typed.stage
		}
		err = typed.cause
	}
	return ""
}
