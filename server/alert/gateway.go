package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Gateway delivers one alert message to one destination. Implementations
// return an error wrapped with Permanent when retrying cannot help.
type Gateway interface {
	Name() string
	Send(ctx context.Context, destination, message, eventID string) error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return "permanent: " + e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// checkResponse turns a non-2xx provider response into an error. Client
// errors other than throttling and timeouts are permanent.
func checkResponse(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s error (status %d): %s", provider, resp.StatusCode, string(body))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusTooManyRequests &&
		resp.StatusCode != http.StatusRequestTimeout {
		return Permanent(err)
	}
	return err
}
