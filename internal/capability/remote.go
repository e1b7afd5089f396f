package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxRemoteBody caps how much of a remote response is read.
const maxRemoteBody = 4 << 20

// RemoteWorker posts assignments as JSON to an HTTP endpoint and decodes an
// Output from the response.
type RemoteWorker struct {
	id       string
	endpoint string
	client   *http.Client
}

// NewRemoteWorker creates a remote worker. A nil client uses http.DefaultClient.
func NewRemoteWorker(id, endpoint string, client *http.Client) *RemoteWorker {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteWorker{id: id, endpoint: endpoint, client: client}
}

// ID returns the capability id.
func (w *RemoteWorker) ID() string { return w.id }

// Execute performs the remote call. Non-2xx responses are errors.
func (w *RemoteWorker) Execute(ctx context.Context, a Assignment) (*Output, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode assignment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Conduct-Capability", w.id)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", w.endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := clip(strings.TrimSpace(string(data)), 200)
		return nil, fmt.Errorf("remote worker returned %d: %s", resp.StatusCode, snippet)
	}

	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	return &out, nil
}
