// Package api provides the HTTP client for the hymn recording host.
package api

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/glebovdev/hymnal-cli/internal/config"
	"github.com/go-resty/resty/v2"
)

const requestTimeout = 60 * time.Second

// StatusError is returned when the host answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("host returned status %d: %s", e.StatusCode, e.Status)
}

// Body is a streamed response body. Size is -1 when the host did not send a length.
type Body struct {
	io.ReadCloser
	Size int64
}

// AudioClient downloads hymn recordings with a plain GET.
type AudioClient struct {
	client *resty.Client
}

// NewAudioClient creates a client whose requests, including reading the body,
// are bounded by timeout. A non-positive timeout selects the default.
func NewAudioClient(timeout time.Duration) *AudioClient {
	if timeout <= 0 {
		timeout = requestTimeout
	}

	return &AudioClient{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", fmt.Sprintf("Hymnal-CLI/%s", config.AppVersion)),
	}
}

// Fetch starts downloading url. The caller must close the returned body.
func (c *AudioClient) Fetch(ctx context.Context, url string) (*Body, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	if !resp.IsSuccess() {
		if body := resp.RawBody(); body != nil {
			body.Close()
		}
		return nil, &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	size := int64(-1)
	if resp.RawResponse != nil {
		size = resp.RawResponse.ContentLength
	}

	return &Body{ReadCloser: resp.RawBody(), Size: size}, nil
}
