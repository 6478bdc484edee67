// Package remote implements the homecloud remote-download API: peer listing,
// task listing, URL validation and task submission over an authenticated session.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/slipstream/homecloud/internal/remote/types"
)

var _ API = (*Client)(nil)

// Client issues requests against the remote API through an injected session.
// It is not safe for concurrent use; wrap it with NewLocked when sharing.
type Client struct {
	session     types.Session
	baseURL     string
	defaultPath string
	logger      zerolog.Logger
}

// New creates a client and authenticates the session if it is not already.
func New(ctx context.Context, session types.Session, cfg *types.ClientConfig, logger zerolog.Logger) (*Client, error) {
	if session == nil {
		return nil, errors.New("remote client requires a session")
	}

	baseURL := types.DefaultBaseURL
	defaultPath := types.DefaultDownloadPath
	if cfg != nil {
		if cfg.BaseURL != "" {
			baseURL = cfg.BaseURL
		}
		if cfg.DefaultPath != "" {
			defaultPath = cfg.DefaultPath
		}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	c := &Client{
		session:     session,
		baseURL:     baseURL,
		defaultPath: defaultPath,
		logger:      logger.With().Str("component", "remote").Logger(),
	}

	if !session.IsAuthenticated() {
		c.logger.Debug().Msg("session not authenticated, logging in")
		if err := session.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("failed to authenticate session: %w", err)
		}
	}

	return c, nil
}

// BaseURL returns the origin all relative paths are joined to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*types.Envelope, error) {
	return c.dispatch(ctx, http.MethodGet, path, params, nil, nil)
}

func (c *Client) post(ctx context.Context, path string, params url.Values, body any, header http.Header) (*types.Envelope, error) {
	return c.dispatch(ctx, http.MethodPost, path, params, body, header)
}

// dispatch sends one request and unwraps the envelope. A non-2xx status is a
// TransportError, an undecodable body a ProtocolError. A nonzero rtn is logged and
// the envelope is still returned; callers decide what it means.
func (c *Client) dispatch(ctx context.Context, method, path string, params url.Values, body any, header http.Header) (*types.Envelope, error) {
	endpoint := c.baseURL + path
	reqURL := endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	bodyReader, isJSON, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if isJSON && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	requestID := uuid.NewString()
	c.logger.Debug().
		Str("requestId", requestID).
		Str("method", method).
		Str("path", path).
		Msg("dispatching request")

	resp, err := c.session.Do(req)
	if err != nil {
		return nil, &types.TransportError{Method: method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &types.TransportError{Method: method, URL: endpoint, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.TransportError{Method: method, URL: endpoint, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	env, err := types.DecodeEnvelope(data)
	if err != nil {
		return nil, withURL(err, endpoint)
	}
	env.Path = path

	if !env.OK() {
		c.logger.Warn().
			Str("requestId", requestID).
			Str("url", endpoint).
			Int("rtn", env.Rtn).
			Msg("remote request returned nonzero code")
	}

	return env, nil
}

// encodeBody passes raw bytes and strings through untouched and serializes
// anything else as UTF-8 JSON.
func encodeBody(body any) (io.Reader, bool, error) {
	switch b := body.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return bytes.NewReader(b), false, nil
	case string:
		return strings.NewReader(b), false, nil
	default:
		data, err := marshalJSON(b)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal request body: %w", err)
		}
		return bytes.NewReader(data), true, nil
	}
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func withURL(err error, endpoint string) error {
	var pe *types.ProtocolError
	if errors.As(err, &pe) && pe.URL == "" {
		pe.URL = endpoint
	}
	return err
}

func baseParams(channelType int) url.Values {
	params := url.Values{}
	params.Set("v", fmt.Sprint(types.ProtocolVersion))
	params.Set("ct", fmt.Sprint(channelType))
	return params
}
