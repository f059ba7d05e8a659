// Package peer is the outbound HTTP client for actor-to-actor calls.
// It carries the bearer secret of the trust, propagates the request id
// for cross-actor log correlation, and classifies transport failures.
package peer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/actingweb/actingweb-go/internal/aw"
	"github.com/actingweb/actingweb-go/internal/config"
)

// maxResponseBytes caps how much of a peer response is read into
// memory.
const maxResponseBytes = 4 << 20

// Response is the outcome of a peer call. Status is zero only when the
// call never reached the peer.
type Response struct {
	Status int
	Body   []byte
	Header http.Header
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client issues authenticated requests to remote actors.
type Client struct {
	http *http.Client
	log  *slog.Logger
}

// NewClient builds a peer client with the configured connect and read
// timeouts.
func NewClient(cfg *config.Config, log *slog.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		log: log.With("subsystem", "peer"),
	}
}

// Request describes one outbound peer call. Secret, ContentType, and
// Header are optional.
type Request struct {
	Method string
	URL    string

	// Secret is sent as the bearer token when non-empty.
	Secret string

	Body        []byte
	ContentType string

	// Header entries are applied last and may override the defaults.
	Header http.Header
}

// Do performs the call. Transport failures come back classified as
// peer_unavailable; HTTP error statuses are returned in the Response
// for the caller to interpret.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, aw.Wrap(
			aw.KindInvalidRequest, err, "bad peer request",
		)
	}

	if req.Secret != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Secret)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	} else if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if rc := aw.FromContext(ctx); rc != nil && rc.RequestID != "" {
		httpReq.Header.Set(aw.HeaderParentRequestID, rc.RequestID)
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = vs
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.DebugContext(ctx, "Peer call failed",
			"method", req.Method, "url", req.URL, "error", err)
		return Response{}, aw.Wrap(
			aw.KindPeerUnavailable, err,
			fmt.Sprintf("%s %s failed", req.Method, req.URL),
		)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, aw.Wrap(
			aw.KindPeerUnavailable, err, "peer response read failed",
		)
	}

	c.log.DebugContext(ctx, "Peer call",
		"method", req.Method,
		"url", req.URL,
		"status", resp.StatusCode,
		"bytes", len(data),
	)

	return Response{
		Status: resp.StatusCode,
		Body:   data,
		Header: resp.Header,
	}, nil
}

// Get is shorthand for a bodyless GET.
func (c *Client) Get(ctx context.Context, url, secret string) (Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: url, Secret: secret})
}

// Delete is shorthand for a bodyless DELETE.
func (c *Client) Delete(ctx context.Context, url, secret string) (Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, URL: url, Secret: secret})
}
