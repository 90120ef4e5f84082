package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	syncerrors "github.com/photonlabs/embedsync/internal/errors"
)

// remoteRequestTimeout bounds a single push or pull request.
const remoteRequestTimeout = 30 * time.Second

// HTTPRemoteClient implements RemoteClient against the embedsync remote
// store API. Authentication is a bearer token; a 401 is classified as
// session-fatal so the sync run aborts instead of burning the whole batch
// against an expired session.
type HTTPRemoteClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// Verify interface implementation at compile time
var _ RemoteClient = (*HTTPRemoteClient)(nil)

// pushRequest is the upload payload.
type pushRequest struct {
	Embeddings []*Embedding `json:"embeddings"`
}

// pullResponse is the download payload.
type pullResponse struct {
	Embeddings []*Embedding `json:"embeddings"`
	Version    int64        `json:"version"`
}

// NewHTTPRemoteClient creates a remote store client.
func NewHTTPRemoteClient(baseURL, token string) *HTTPRemoteClient {
	return &HTTPRemoteClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: remoteRequestTimeout},
	}
}

// Push uploads locally computed embeddings.
func (c *HTTPRemoteClient) Push(ctx context.Context, embeddings []*Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	payload, err := json.Marshal(pushRequest{Embeddings: embeddings})
	if err != nil {
		return syncerrors.Wrap(syncerrors.ErrCodeInternal, err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return c.checkStatus(resp)
}

// Pull returns embeddings newer than since and the latest version cursor.
func (c *HTTPRemoteClient) Pull(ctx context.Context, modelTag string, since int64) ([]*Embedding, int64, error) {
	path := fmt.Sprintf("/v1/embeddings?model=%s&since=%d", modelTag, since)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp); err != nil {
		return nil, 0, err
	}

	var out pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, syncerrors.New(syncerrors.ErrCodeRemoteRejected,
			"failed to decode pull response", err)
	}
	return out.Embeddings, out.Version, nil
}

// do issues one authenticated request; transport errors are session-fatal.
// The overall deadline comes from the client timeout so the caller can still
// read the response body after do returns.
func (c *HTTPRemoteClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, syncerrors.Wrap(syncerrors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, syncerrors.NetworkUnreachableError(err)
	}
	return resp, nil
}

// checkStatus maps HTTP status codes onto the error taxonomy.
func (c *HTTPRemoteClient) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return syncerrors.AuthExpiredError(nil)
	case resp.StatusCode >= 500:
		return syncerrors.New(syncerrors.ErrCodeNetworkTimeout,
			fmt.Sprintf("remote store returned %d", resp.StatusCode), nil)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return syncerrors.New(syncerrors.ErrCodeRemoteRejected,
			fmt.Sprintf("remote store returned %d: %s", resp.StatusCode, string(body)), nil)
	}
}
