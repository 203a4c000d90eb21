package timestream

import (
	"context"

	"github.com/aws/smithy-go"
	"github.com/pkg/errors"

	"github.com/SimonWaldherr/tsodbc/internal/diag"
)

var codeStates = map[string]diag.State{
	"AccessDeniedException":         diag.StateAuthFailed,
	"UnrecognizedClientException":   diag.StateAuthFailed,
	"InvalidSignatureException":     diag.StateAuthFailed,
	"ExpiredTokenException":         diag.StateAuthFailed,
	"ValidationException":           diag.StateSyntax,
	"ResourceNotFoundException":     diag.StateTableNotFound,
	"InvalidEndpointException":      diag.StateConnectFailed,
	"ThrottlingException":           diag.StateLinkFailure,
	"InternalServerException":       diag.StateLinkFailure,
	"ServiceQuotaExceededException": diag.StateGeneral,
	"QueryExecutionException":       diag.StateGeneral,
	"ConflictException":             diag.StateGeneral,
}

// translate maps SDK errors onto diagnostics. Service errors keep their
// code as the message prefix; transport failures become 08S01.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return diag.Wrap(err, diag.StateTimeout, "timestream: %s timed out", op)
	case errors.Is(err, context.Canceled):
		return diag.Wrap(err, diag.StateCanceled, "timestream: %s canceled", op)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		st, ok := codeStates[apiErr.ErrorCode()]
		if !ok {
			st = diag.StateGeneral
		}
		return &diag.Error{State: st, Message: apiErr.ErrorCode() + ": " + apiErr.ErrorMessage(), Err: err}
	}
	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		return diag.Wrap(err, diag.StateLinkFailure, "timestream: %s", op)
	}
	return diag.Wrap(err, diag.StateGeneral, "timestream: %s", op)
}
