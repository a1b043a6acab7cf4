package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/wanderly/identity/pkg/errors"
)

// apiErrorBody covers the two error shapes seen from JSON APIs: a nested
// {"error":{"code","message"}} object and the flat {"name","message"} form.
type apiErrorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// turns it into an AppError carrying the upstream code and message.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", upstream, resp.StatusCode, err)
	}

	var body apiErrorBody
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Error != nil:
			return mapUpstreamError(resp.StatusCode, body.Error.Code, body.Error.Message, upstream)
		case body.Message != "":
			return mapUpstreamError(resp.StatusCode, body.Name, body.Message, upstream)
		}
	}
	return fmt.Errorf("%s returned status %d: %s", upstream, resp.StatusCode, string(raw))
}

func mapUpstreamError(status int, code, message, upstream string) error {
	qualified := fmt.Sprintf("%s: %s", upstream, message)

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case status == http.StatusNotFound:
		return apperrors.NotFound(upstream, message)
	case status == http.StatusTooManyRequests:
		return apperrors.TooManyRequests(qualified)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualified, nil)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", upstream, status, code, message)
	default:
		return &apperrors.AppError{Code: code, Message: qualified, Status: status}
	}
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
