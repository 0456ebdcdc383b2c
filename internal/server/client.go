package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/niivue/niiview/internal/panel"
)

// Client is a REST API client for a running host.
type Client struct {
	BaseURL *url.URL

	httpClient *http.Client
	logger     logrus.FieldLogger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient returns a client for the host listening at addr.
func NewClient(addr string, options ...ClientOption) (*Client, error) {
	baseURL, err := url.Parse("http://" + addr)
	if err != nil {
		return nil, err
	}
	c := &Client{
		BaseURL:    baseURL,
		httpClient: http.DefaultClient,
	}

	for _, option := range options {
		option(c)
	}

	return c, nil
}

// WithHTTPClient configures the HTTP client used for the requests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger of the client.
func WithLogger(logger logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Ping checks that the host is up.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/ping", nil, nil)
}

// Edit opens uri in the editor panel of a running host.
func (c *Client) Edit(ctx context.Context, uri string) (info panel.Info, err error) {
	err = c.call(ctx, http.MethodPost, "/api/v1/edit", ResourceRequest{URI: uri}, &info)
	return info, err
}

// Open opens uri in a web panel of a running host.
func (c *Client) Open(ctx context.Context, uri string) (info panel.Info, err error) {
	err = c.call(ctx, http.MethodPost, "/api/v1/open", ResourceRequest{URI: uri}, &info)
	return info, err
}

// Compare opens uris in a compare panel of a running host.
func (c *Client) Compare(ctx context.Context, uris []string) (info panel.Info, err error) {
	err = c.call(ctx, http.MethodPost, "/api/v1/compare", ResourceRequest{URIs: uris}, &info)
	return info, err
}

// Panels lists the live panels of a running host.
func (c *Client) Panels(ctx context.Context) (infos []panel.Info, err error) {
	err = c.call(ctx, http.MethodGet, "/api/v1/panels", nil, &infos)
	return infos, err
}

func (c *Client) call(ctx context.Context, method, rel string, body, out any) (err error) {
	if c.logger != nil {
		c.logger.Debugf("[REST API] Making a %s request to '%s'", method, rel)
		defer func() {
			if err != nil {
				c.logger.WithError(err).Debug("[REST API] Error")
			}
		}()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	u := c.BaseURL.ResolveReference(&url.URL{Path: rel})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode >= 400 {
		var errs ErrorResponse
		if err := json.Unmarshal(data, &errs); err != nil || len(errs.Errors) == 0 {
			return fmt.Errorf("unexpected response status %s", res.Status)
		}
		return errs.Errors[0]
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}
