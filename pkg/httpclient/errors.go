package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
)

// ErrorBody mirrors httputil.ErrorResponse. It is used to parse structured
// error bodies returned by the API.
type ErrorBody struct {
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	} `json:"error"`
}

// sentinelByCode maps wire codes back to the sentinels callers match with
// errors.Is.
var sentinelByCode = map[string]error{
	apperrors.CodeValidation:         apperrors.ErrValidation,
	apperrors.CodeInvalidCredentials: apperrors.ErrInvalidCredentials,
	apperrors.CodeDuplicateEmail:     apperrors.ErrDuplicateEmail,
	apperrors.CodeUnauthenticated:    apperrors.ErrUnauthenticated,
	apperrors.CodeForbidden:          apperrors.ErrForbidden,
	apperrors.CodeNotFound:           apperrors.ErrNotFound,
	apperrors.CodeRateLimited:        apperrors.ErrRateLimited,
	apperrors.CodeInternal:           apperrors.ErrInternal,
	apperrors.CodeServiceUnavail:     apperrors.ErrServiceUnavail,
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an *apperrors.AppError. A structured body keeps its code and message;
// anything else is classified by status code alone.
//
// Call it only for error statuses. The body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var body ErrorBody
	if json.Unmarshal(raw, &body) == nil && body.Error != nil && body.Error.Code != "" {
		return &apperrors.AppError{
			Code:    body.Error.Code,
			Message: body.Error.Message,
			Status:  resp.StatusCode,
			Err:     sentinelFor(body.Error.Code, resp.StatusCode),
		}
	}

	code := codeForStatus(resp.StatusCode)
	return &apperrors.AppError{
		Code:    code,
		Message: fmt.Sprintf("%s returned status %d", serviceName, resp.StatusCode),
		Status:  resp.StatusCode,
		Err:     sentinelFor(code, resp.StatusCode),
	}
}

func sentinelFor(code string, status int) error {
	if err, ok := sentinelByCode[code]; ok {
		return err
	}
	return sentinelByCode[codeForStatus(status)]
}

// codeForStatus guesses a code for bodies that do not carry one.
func codeForStatus(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return apperrors.CodeValidation
	case status == http.StatusUnauthorized:
		return apperrors.CodeUnauthenticated
	case status == http.StatusForbidden:
		return apperrors.CodeForbidden
	case status == http.StatusNotFound:
		return apperrors.CodeNotFound
	case status == http.StatusConflict:
		return apperrors.CodeDuplicateEmail
	case status == http.StatusTooManyRequests:
		return apperrors.CodeRateLimited
	case status == http.StatusServiceUnavailable:
		return apperrors.CodeServiceUnavail
	default:
		return apperrors.CodeInternal
	}
}
