package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/httputil"
)

// client is a thin JSON client for the regulus HTTP API.
type client struct {
	base string
	http *http.Client
}

func newClient() *client {
	return &client{
		base: strings.TrimRight(serverFlag, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	return c.do(req, out)
}

func (c *client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do sends req and decodes a 200 response into out. Error bodies become
// errors carrying the server's message and hints.
func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WithHintf(errors.Wrapf(err, "%s %s", req.Method, req.URL.Path),
			"is regulus running at %s?", c.base)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body httputil.ErrorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxBodyBytes))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			return errors.Newf("%s %s: %s", req.Method, req.URL.Path, resp.Status)
		}
		err := errors.Newf("%s (HTTP %d)", body.Error, resp.StatusCode)
		for _, h := range body.Hints {
			err = errors.WithHint(err, h)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
