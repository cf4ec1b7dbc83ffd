package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

type apiClient struct {
	http *resty.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &apiClient{http: c}
}

// request runs method on path and copies a successful body to out.
// Non-2xx responses become errors carrying the server's message.
func (c *apiClient) request(ctx context.Context, method, path string, query map[string]string, body interface{}, out io.Writer) error {
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	if len(resp.Body()) > 0 {
		if _, err := fmt.Fprintln(out, string(resp.Body())); err != nil {
			return err
		}
	}
	return nil
}

func clientFor(cmd *cobra.Command) (*apiClient, context.Context) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return newAPIClient(apiFlag, timeoutFlag), ctx
}
