// Package client talks to a webserv-tester instance running in server mode.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Simonization/webservTester/internal/model"
)

type Report = model.Report

type Client struct {
	http *http.Client
	host string
}

type RequestError struct {
	ResponseCode int
}

func (e RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.ResponseCode)
}

func New(host string, c *http.Client) Client {
	return Client{http: c, host: host}
}

// CreateRun triggers a new conformance run and returns its pending report.
func (c Client) CreateRun(ctx context.Context) (Report, error) {
	req, err := http.NewRequest("POST", c.url("/runs"), nil)
	if err != nil {
		return Report{}, err
	}

	var r Report

	if err = c.do(ctx, req, &r); err != nil {
		return Report{}, err
	}

	return r, nil
}

func (c Client) GetRun(ctx context.Context, runID int) (Report, error) {
	req, err := http.NewRequest("GET", c.url("/runs/%d", runID), nil)
	if err != nil {
		return Report{}, err
	}

	var r Report

	if err = c.do(ctx, req, &r); err != nil {
		return Report{}, err
	}

	return r, nil
}

func (c Client) ListRuns(ctx context.Context) ([]Report, error) {
	req, err := http.NewRequest("GET", c.url("/runs"), nil)
	if err != nil {
		return nil, err
	}

	var rs []Report

	if err = c.do(ctx, req, &rs); err != nil {
		return nil, err
	}

	return rs, nil
}

func (c Client) url(path string, args ...any) string {
	return fmt.Sprintf(c.host+path, args...)
}

func (c Client) do(ctx context.Context, req *http.Request, body any) error {
	req = req.WithContext(ctx)
	req.Header.Add("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return RequestError{res.StatusCode}
	}

	if body != nil {
		d := json.NewDecoder(res.Body)

		if err = d.Decode(body); err != nil {
			return err
		}
	}

	return nil
}
