// Package wapi is the low-level client for a Tahoe-LAFS grid's WAPI, the
// JSON-over-HTTP control plane. It performs stateless round trips only;
// object typing and the directory graph live in pkg/gridfs.
package wapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sly67/tahoegrid/internal/metrics"
	"github.com/sly67/tahoegrid/pkg/capability"
	"github.com/sly67/tahoegrid/pkg/retry"
)

// DefaultURL is the WAPI endpoint a freshly configured Tahoe-LAFS node
// listens on.
const DefaultURL = "http://localhost:3456"

// Config holds client configuration.
type Config struct {
	// BaseURL is the grid's WAPI endpoint. Required.
	BaseURL string
	// Timeout bounds every round trip, body included. Defaults to 30s.
	Timeout time.Duration
	// Retry is the retry policy. The default performs a single attempt;
	// the client never retries unless the caller opts in here.
	Retry retry.Config
	// Logger receives debug-level request logging. Defaults to a nop logger.
	Logger *zap.Logger
}

// Client speaks the WAPI. Every call is a fresh round trip; the client
// holds no cache and no per-object state, so a single Client is safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.Config
	log        *zap.Logger
}

// New creates a Client for the given WAPI endpoint. No network traffic is
// performed here; Probe is the liveness check.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, FilesystemError.New("WAPI URL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, FilesystemError.New("invalid WAPI URL %q: %v", cfg.BaseURL, err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Single()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryCfg: cfg.Retry,
		log:      log,
	}, nil
}

// BaseURL returns the WAPI endpoint this client is bound to.
func (c *Client) BaseURL() string { return c.baseURL }

// Probe checks that the endpoint runs a live grid node by querying its
// statistics resource, and returns the node's reported uptime.
func (c *Client) Probe(ctx context.Context) (time.Duration, error) {
	return retry.DoWithResult(ctx, c.retryCfg, func() (time.Duration, error) {
		resp, err := c.do(ctx, "probe", http.MethodGet, "/statistics", url.Values{"t": {"json"}}, nil)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return 0, statusError("probe", resp.StatusCode)
		}

		var payload struct {
			Stats map[string]float64 `json:"stats"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return 0, FilesystemError.Wrap(ProtocolError.New("statistics: %v", err))
		}
		uptime, ok := payload.Stats["node.uptime"]
		if !ok {
			return 0, FilesystemError.Wrap(ProtocolError.New("statistics missing node.uptime"))
		}
		return time.Duration(uptime * float64(time.Second)), nil
	})
}

// FetchEnvelope retrieves the JSON envelope for a capability.
func (c *Client) FetchEnvelope(ctx context.Context, cap capability.Cap) (*Envelope, error) {
	return retry.DoWithResult(ctx, c.retryCfg, func() (*Envelope, error) {
		resp, err := c.do(ctx, "fetch_envelope", http.MethodGet, "/uri/"+url.PathEscape(cap.String()), url.Values{"t": {"json"}}, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, statusError("fetch envelope", resp.StatusCode)
		}

		var env Envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, FilesystemError.Wrap(ProtocolError.New("envelope for %s: %v", cap, err))
		}
		return &env, nil
	})
}

// ByteRange selects a slice of a file's content. Length <= 0 means
// "through the end".
type ByteRange struct {
	Offset int64
	Length int64
}

func (r ByteRange) header() string {
	if r.Length > 0 {
		return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Length-1)
	}
	return fmt.Sprintf("bytes=%d-", r.Offset)
}

// FetchBytes streams the raw content behind a file capability. A nil rng
// fetches the whole object. The caller owns the returned reader.
func (c *Client) FetchBytes(ctx context.Context, cap capability.Cap, rng *ByteRange) (io.ReadCloser, error) {
	return retry.DoWithResult(ctx, c.retryCfg, func() (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/uri/"+url.PathEscape(cap.String()), nil)
		if err != nil {
			return nil, FilesystemError.Wrap(err)
		}
		if rng != nil {
			req.Header.Set("Range", rng.header())
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.ObserveRequest("fetch_bytes", 0, time.Since(start))
			return nil, retry.Retryable(FilesystemError.Wrap(UnreachableError.Wrap(err)))
		}
		metrics.ObserveRequest("fetch_bytes", resp.StatusCode, time.Since(start))

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			resp.Body.Close()
			return nil, statusError("fetch bytes", resp.StatusCode)
		}

		body := io.ReadCloser(&countingReadCloser{rc: resp.Body})
		if rng != nil && resp.StatusCode == http.StatusOK {
			// The grid ignored the Range header and sent the whole
			// object; slice the requested window out of the stream.
			body = &slicedReadCloser{rc: body, skip: rng.Offset, limit: rng.Length}
		}
		return body, nil
	})
}

// CreateDirectory asks the grid to create a fresh mutable directory and
// returns its write capability.
func (c *Client) CreateDirectory(ctx context.Context) (capability.Cap, error) {
	return retry.DoWithResult(ctx, c.retryCfg, func() (capability.Cap, error) {
		resp, err := c.do(ctx, "mkdir", http.MethodPost, "/uri", url.Values{"t": {"mkdir"}}, nil)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return "", statusError("mkdir", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", FilesystemError.Wrap(ProtocolError.New("mkdir response: %v", err))
		}
		writeCap := capability.Cap(strings.TrimSpace(string(body)))
		if writeCap.Empty() {
			return "", FilesystemError.Wrap(ProtocolError.New("mkdir returned an empty capability"))
		}
		return writeCap, nil
	})
}

// PutImmutable uploads immutable content and returns the resulting read
// capability. The content is buffered by the caller so the request can be
// replayed under a retrying policy.
func (c *Client) PutImmutable(ctx context.Context, data []byte) (capability.Cap, error) {
	return retry.DoWithResult(ctx, c.retryCfg, func() (capability.Cap, error) {
		resp, err := c.do(ctx, "put_immutable", http.MethodPut, "/uri", nil, bytes.NewReader(data))
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return "", statusError("upload", resp.StatusCode)
		}
		metrics.AddBytesUploaded(int64(len(data)))

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", FilesystemError.Wrap(ProtocolError.New("upload response: %v", err))
		}
		readCap := capability.Cap(strings.TrimSpace(string(body)))
		if readCap.Empty() {
			return "", FilesystemError.Wrap(ProtocolError.New("upload returned an empty capability"))
		}
		return readCap, nil
	})
}

// LinkChild attaches childCap under name inside the directory addressed by
// parentWriteCap. Unless overwrite is set the link is issued with
// replace=false, so an existing child under that name fails with
// AttachError instead of being replaced.
func (c *Client) LinkChild(ctx context.Context, parentWriteCap capability.Cap, name string, childCap capability.Cap, overwrite bool) error {
	return retry.Do(ctx, c.retryCfg, func() error {
		replace := "false"
		if overwrite {
			replace = "true"
		}
		path := "/uri/" + url.PathEscape(parentWriteCap.String()) + "/" + url.PathEscape(name)
		query := url.Values{"t": {"uri"}, "replace": {replace}}

		resp, err := c.do(ctx, "link_child", http.MethodPut, path, query, strings.NewReader(childCap.String()))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return AttachError.New("link %q: request failed with status %d", name, resp.StatusCode)
		}
		return nil
	})
}

// do performs one HTTP round trip and records it. Transport failures come
// back as retryable UnreachableError; status handling is the caller's.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, FilesystemError.Wrap(err)
	}

	c.log.Debug("wapi request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("url", u),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRequest(op, 0, time.Since(start))
		c.log.Debug("wapi transport failure", zap.String("op", op), zap.Error(err))
		return nil, retry.Retryable(FilesystemError.Wrap(UnreachableError.Wrap(err)))
	}
	metrics.ObserveRequest(op, resp.StatusCode, time.Since(start))
	return resp, nil
}

// statusError maps an unexpected HTTP status to the taxonomy. 5xx statuses
// are marked retryable for callers running a multi-attempt policy.
func statusError(op string, status int) error {
	err := FilesystemError.Wrap(ProtocolError.New("%s: unexpected status %d", op, status))
	if status >= 500 {
		return retry.Retryable(err)
	}
	return err
}

type countingReadCloser struct {
	rc io.ReadCloser
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	metrics.AddBytesDownloaded(int64(n))
	return n, err
}

func (c *countingReadCloser) Close() error { return c.rc.Close() }

// slicedReadCloser reduces a full-object stream to the byte range the
// caller asked for: skip bytes are discarded before the first read, and
// limit > 0 bounds what is handed out. A stream shorter than skip reads
// as empty.
type slicedReadCloser struct {
	rc    io.ReadCloser
	skip  int64
	limit int64
	done  bool
}

func (s *slicedReadCloser) Read(p []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	if s.skip > 0 {
		if _, err := io.CopyN(io.Discard, s.rc, s.skip); err != nil {
			s.done = true
			if err == io.EOF {
				return 0, io.EOF
			}
			return 0, err
		}
		s.skip = 0
	}
	if s.limit > 0 && int64(len(p)) > s.limit {
		p = p[:s.limit]
	}
	n, err := s.rc.Read(p)
	if s.limit > 0 {
		s.limit -= int64(n)
		if s.limit == 0 {
			s.done = true
		}
	}
	return n, err
}

func (s *slicedReadCloser) Close() error { return s.rc.Close() }
