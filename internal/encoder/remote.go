package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dshills/cinematch/pkg/types"
)

// errModelWarming marks a transient "model is still loading" response from
// the remote encoder. Only this class of failure is retried.
var errModelWarming = errors.New("remote model warming up")

const remoteTimeout = 30 * time.Second

// RemoteModel encodes text by calling an external embedding service that
// hosts the sentence model behind a batch /embed endpoint. It substitutes
// for local model invocation; the Encoder falls back to the local model on
// any non-retryable failure or after retries are exhausted.
type RemoteModel struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
}

// NewRemoteModel creates a remote encoder client for the given base URL.
func NewRemoteModel(baseURL string) *RemoteModel {
	return &RemoteModel{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: remoteTimeout,
		},
		retry: defaultRetryConfig(),
	}
}

func (r *RemoteModel) Name() string { return "remote:" + DefaultModelName }

func (r *RemoteModel) Dimension() int { return NativeDimension }

// Encode posts the batch to the remote service, retrying with exponential
// backoff while the service reports that the model is still warming up.
func (r *RemoteModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := retryWithBackoff(ctx, r.retry,
		func(err error) bool { return errors.Is(err, errModelWarming) },
		func() ([][]float32, error) { return r.call(ctx, texts) },
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRemoteEncoding, err)
	}
	return vectors, nil
}

func (r *RemoteModel) call(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"texts": texts,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		msg := strings.ToLower(string(bodyBytes))
		if resp.StatusCode == http.StatusServiceUnavailable ||
			strings.Contains(msg, "loading") || strings.Contains(msg, "warming") {
			return nil, fmt.Errorf("%w: api status %d: %s", errModelWarming, resp.StatusCode, string(bodyBytes))
		}
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("remote returned %d embeddings for %d texts",
			len(apiResp.Embeddings), len(texts))
	}
	for i, vec := range apiResp.Embeddings {
		if len(vec) != NativeDimension {
			return nil, fmt.Errorf("remote embedding %d is %d wide, want %d",
				i, len(vec), NativeDimension)
		}
	}
	return apiResp.Embeddings, nil
}
