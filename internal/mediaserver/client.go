// apiClient is grounded on the teacher's mediamtx.Client: a thin REST
// client against the media server's control API, used here only for
// readiness polling and reload (spec.md §6: "Used only for readiness
// polling and optional reload. Failures treated as 'not ready'").
package mediaserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BigTonyTones/onvif-gateway/pkg/digest"
)

type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string, digestUsername, digestPassword string) *apiClient {
	var rt http.RoundTripper = http.DefaultTransport
	if digestUsername != "" {
		rt = digest.NewTransport(digestUsername, digestPassword)
	}
	return &apiClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second, Transport: rt},
	}
}

// pathReady reports whether the media server considers name ready, by
// polling its /v3/paths/get/<name> endpoint. Any failure -- network error,
// non-200, malformed body -- is treated as "not ready", per spec.md §6.
func (c *apiClient) pathReady(ctx context.Context, name string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/paths/get/"+name, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var info struct {
		Ready bool `json:"ready"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false
	}
	return info.Ready
}

// reload asks the media server to reload its configuration in place
// (spec.md §4.5: "signal it to reload (if supported)"). Returns an error
// the caller falls back on to kill-and-respawn instead.
func (c *apiClient) reload(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/config/reload", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reload: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *apiClient) ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/config/global/get", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
