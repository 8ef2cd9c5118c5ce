// internal/gateway/http.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/ragbench/internal/logging"
)

// HTTPGateway implements SearchGateway against the backend's JSON wire
// contract: POST {base}/search/{vector|bm25|hybrid} and POST {base}/qa.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	debug   bool
}

// NewHTTPGateway constructs an HTTPGateway for the given base URL and request
// timeout. The timeout bounds each individual call, not a whole pair.
func NewHTTPGateway(baseURL string, timeout time.Duration, debug bool) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
		debug: debug,
	}
}

type searchRequest struct {
	Question     string   `json:"question"`
	TopK         int      `json:"topK"`
	VectorWeight *float64 `json:"vectorWeight,omitempty"`
	BM25Weight   *float64 `json:"bm25Weight,omitempty"`
}

type searchResponse struct {
	Contexts       []string `json:"contexts"`
	SearchType     string   `json:"searchType"`
	ResponseTimeMs int64    `json:"responseTimeMs"`
}

type qaRequest struct {
	Question   string `json:"question"`
	SearchType string `json:"searchType"`
	TopK       int    `json:"topK"`
}

type qaResponse struct {
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	Contexts       []string `json:"contexts"`
	ResponseTimeMs int64    `json:"responseTimeMs"`
	SearchType     string   `json:"searchType"`
}

// Retrieve calls the per-kind search endpoint and returns the ranked contexts.
func (g *HTTPGateway) Retrieve(ctx context.Context, req RetrieveRequest) (RetrieveResponse, error) {
	payload := searchRequest{Question: req.Question, TopK: req.TopK}
	if req.Kind == SearchHybrid {
		vw, bw := req.VectorWeight, req.BM25Weight
		payload.VectorWeight = &vw
		payload.BM25Weight = &bw
	}

	endpoint := fmt.Sprintf("%s/search/%s", g.baseURL, req.Kind)
	var body searchResponse
	elapsed, err := g.post(ctx, endpoint, payload, &body)
	if err != nil {
		return RetrieveResponse{}, err
	}
	if body.Contexts == nil {
		return RetrieveResponse{}, Errorf(KindGatewayBadResponse, "search response from %s has no contexts field", endpoint)
	}

	latency := body.ResponseTimeMs
	if latency <= 0 {
		latency = elapsed
	}
	return RetrieveResponse{Contexts: body.Contexts, LatencyMs: latency}, nil
}

// Answer calls the qa endpoint and returns the generated answer with its contexts.
func (g *HTTPGateway) Answer(ctx context.Context, req AnswerRequest) (AnswerResponse, error) {
	payload := qaRequest{Question: req.Question, SearchType: string(req.Kind), TopK: req.TopK}

	endpoint := g.baseURL + "/qa"
	var body qaResponse
	elapsed, err := g.post(ctx, endpoint, payload, &body)
	if err != nil {
		return AnswerResponse{}, err
	}
	if body.Answer == "" && body.Contexts == nil {
		return AnswerResponse{}, Errorf(KindGatewayBadResponse, "qa response from %s has neither answer nor contexts", endpoint)
	}

	latency := body.ResponseTimeMs
	if latency <= 0 {
		latency = elapsed
	}
	return AnswerResponse{Answer: body.Answer, Contexts: body.Contexts, LatencyMs: latency}, nil
}

// Healthy reports whether the backend responds on its health endpoint.
func (g *HTTPGateway) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// post sends one JSON request and decodes the response into out, returning
// the measured wall time in milliseconds.
func (g *HTTPGateway) post(ctx context.Context, endpoint string, payload, out any) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, Wrap(KindGatewayBadResponse, err, "encode request for %s", endpoint)
	}

	if g.debug {
		logging.LogRequest("send", endpoint, raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return 0, Wrap(KindGatewayUnavailable, err, "build request for %s", endpoint)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return elapsed, classifyTransportError(endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return elapsed, classifyTransportError(endpoint, err)
	}

	if g.debug {
		logging.LogRequest("recv", endpoint, data)
	}

	// Any 2xx counts as success; backends differ on 200 vs 201/204.
	if resp.StatusCode/100 != 2 {
		return elapsed, Errorf(KindGatewayUnavailable, "%s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return elapsed, Wrap(KindGatewayBadResponse, err, "decode response from %s", endpoint)
	}
	return elapsed, nil
}

// classifyTransportError maps transport failures onto the retryable kinds:
// deadline expiry becomes KindGatewayTimeout, everything else on the wire
// becomes KindGatewayUnavailable.
func classifyTransportError(endpoint string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindGatewayTimeout, err, "request to %s timed out", endpoint)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(KindGatewayTimeout, err, "request to %s timed out", endpoint)
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(KindCancelled, err, "request to %s cancelled", endpoint)
	}
	return Wrap(KindGatewayUnavailable, err, "request to %s failed", endpoint)
}
