package transform

import (
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
)

func schemaError(stage Stage, message string) error {
	return pkgerrors.New(pkgerrors.CodeSchema, message).WithStage(stage.String())
}

func emptyInputError(stage Stage, message string) error {
	return pkgerrors.New(pkgerrors.CodeEmptyInput, message).WithStage(stage.String())
}

func numericError(stage Stage, message string, details map[string]any) error {
	return pkgerrors.New(pkgerrors.CodeNumeric, message).WithStage(stage.String()).WithDetails(details)
}

func validationError(stage Stage, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithStage(stage.String())
}
