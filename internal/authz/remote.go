package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// pdpPrincipal is the subject representation the policy decision point
// expects: the full role set plus every attribute from the resolved context.
type pdpPrincipal struct {
	ID         string         `json:"id"`
	Roles      []string       `json:"roles"`
	Attributes map[string]any `json:"attributes"`
}

type pdpResource struct {
	Kind       string         `json:"kind"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type pdpRequest struct {
	Principal pdpPrincipal `json:"principal"`
	Resource  pdpResource  `json:"resource"`
	Action    string       `json:"action"`
}

type pdpResponse struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// RemoteEngine translates check requests into calls against the external
// policy decision point. It is fail-closed by construction: a missing,
// malformed, or errored response never maps to an allow.
type RemoteEngine struct {
	baseURL string
	client  *http.Client
}

// NewRemoteEngine constructs a RemoteEngine. The timeout bounds each policy
// call; an expired call surfaces as an adapter error and therefore a denial.
func NewRemoteEngine(baseURL string, timeout time.Duration) *RemoteEngine {
	return &RemoteEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements Engine.
func (e *RemoteEngine) Name() EngineType { return EngineRemote }

// Evaluate implements Engine. It submits a single check for the one requested
// action and interprets anything other than an explicit allow as a denial.
func (e *RemoteEngine) Evaluate(ctx context.Context, req CheckRequest, principal *Principal) (Verdict, error) {
	payload := pdpRequest{
		Principal: pdpPrincipal{
			ID:         principal.ID,
			Roles:      principal.Roles,
			Attributes: principal.Attributes(),
		},
		Resource: pdpResource{
			Kind:       req.Resource.Kind,
			ID:         req.Resource.ID,
			Attributes: req.Resource.Attributes,
		},
		Action: req.Action,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Verdict{}, fmt.Errorf("authz: encode pdp request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/authorize", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("authz: build pdp request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return Verdict{}, fmt.Errorf("authz: call pdp: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("authz: pdp returned status %d", resp.StatusCode)
	}

	var verdict pdpResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return Verdict{}, fmt.Errorf("authz: decode pdp response: %w", err)
	}

	switch verdict.Decision {
	case string(DecisionAllow):
		reason := verdict.Reason
		if reason == "" {
			reason = ReasonRemoteAllow
		}
		return Verdict{Allowed: true, Reason: reason}, nil
	case string(DecisionDeny):
		reason := verdict.Reason
		if reason == "" {
			reason = ReasonRemoteDeny
		}
		return Verdict{Allowed: false, Reason: reason}, nil
	default:
		return Verdict{}, fmt.Errorf("authz: pdp returned unknown decision %q", verdict.Decision)
	}
}

// Ping implements Engine by probing the decision point's health endpoint.
func (e *RemoteEngine) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("authz: build pdp health request: %w", err)
	}
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("authz: pdp health: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authz: pdp health status %d", resp.StatusCode)
	}
	return nil
}
