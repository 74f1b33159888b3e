package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.io.solutions/v1/io-explorer"
	DefaultTimeout = 10 * time.Second

	healthyStatus    = "up"
	healthyReadiness = "Cluster Ready"
)

// ErrUnauthorized is returned when the API rejects the token.
var ErrUnauthorized = errors.New("device api: token expired or invalid")

// ResponseError is returned when the API answered but the reply was not
// a usable status document.
type ResponseError struct {
	StatusCode int
	Err        error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device api: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("device api: unexpected status %d", e.StatusCode)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Responded reports whether err (or its absence) means the API produced an
// authenticated response.
func Responded(err error) bool {
	if err == nil {
		return true
	}
	var re *ResponseError
	return errors.As(err, &re)
}

// Status is the queried state of one device.
type Status struct {
	DeviceID                string
	Status                  string
	Readiness               string
	LastChallengeSuccessful bool
}

// Healthy is false when any of status, readiness or the last challenge is off.
func (s Status) Healthy() bool {
	return s.Status == healthyStatus &&
		s.Readiness == healthyReadiness &&
		s.LastChallengeSuccessful
}

// Message renders the status for chat delivery.
func (s Status) Message() string {
	return fmt.Sprintf("Device ID: %s\n  Device Status: %s\n  Readiness: %s\n  Last Challenge Successful: %t\n",
		s.DeviceID, s.Status, s.Readiness, s.LastChallengeSuccessful)
}

type detailsResponse struct {
	Data struct {
		Status        string `json:"status"`
		ReadinessInfo struct {
			Readiness string `json:"readiness"`
		} `json:"readiness_info"`
		LastChallengeSuccessful bool `json:"last_challenge_successful"`
	} `json:"data"`
}

// Fetcher retrieves the current status of a device.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (Status, error)
}

// Client talks to the device explorer API.
type Client struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (c Client) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (c Client) detailsURL(id string) string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/devices/%s/details", strings.TrimSuffix(base, "/"), url.PathEscape(id))
}

// Fetch queries the details endpoint for id.
func (c Client) Fetch(ctx context.Context, id string) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.detailsURL(id), nil)
	if err != nil {
		return Status{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Token", c.Token)

	resp, err := c.client().Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Status{}, ErrUnauthorized
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Status{}, &ResponseError{StatusCode: resp.StatusCode}
	}

	var body detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Status{}, &ResponseError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}

	return Status{
		DeviceID:                id,
		Status:                  body.Data.Status,
		Readiness:               body.Data.ReadinessInfo.Readiness,
		LastChallengeSuccessful: body.Data.LastChallengeSuccessful,
	}, nil
}
