package main

import (
	"context"
	"io"
	"net/http"
	"time"
)

// httpTrigger is the concrete session.HTTPTrigger collaborator: a plain
// *http.Client. Spec §1 scopes the HTTP client itself out of the core —
// only the DebugSession.TriggerRequest seam is specified — so the client
// lives here, at the binary's composition root.
type httpTrigger struct {
	client *http.Client
}

func newHTTPTrigger() *httpTrigger {
	return &httpTrigger{client: &http.Client{Timeout: 30 * time.Second}}
}

func (h *httpTrigger) Do(ctx context.Context, method, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}
