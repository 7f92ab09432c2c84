package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPEvaluator queries a remote credit oracle over HTTP. The oracle is
// expected to answer POST {baseURL}/assess with an Assessment JSON body.
type HTTPEvaluator struct {
	name    string
	baseURL string
	http    *http.Client
}

// NewHTTPEvaluator creates an HTTPEvaluator targeting baseURL. name is
// used as the assessment's Source.
func NewHTTPEvaluator(name, baseURL string, timeout time.Duration) *HTTPEvaluator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEvaluator{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Assess implements Evaluator. The response undergoes a structural shape
// check before it is returned; an out-of-contract body is an error, never
// a half-trusted result.
func (e *HTTPEvaluator) Assess(ctx context.Context, req AssessmentRequest) (*Assessment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal assessment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build assess request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assess request to %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle %s returned status %d", e.name, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read assess response: %w", err)
	}

	var a Assessment
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode assess response: %w", err)
	}
	if err := validateShape(&a); err != nil {
		return nil, fmt.Errorf("oracle %s response failed shape check: %w", e.name, err)
	}

	a.Approved = a.Score < rejectThreshold
	a.Source = e.name
	return &a, nil
}
