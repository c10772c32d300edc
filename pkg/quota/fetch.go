package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

const (
	// Undocumented beta endpoint; subject to change without notice.
	DefaultEndpoint   = "https://api.anthropic.com/api/oauth/usage"
	DefaultBetaHeader = "oauth-2025-04-20"

	defaultFetchTimeout = 3 * time.Second
)

var ErrNoToken = errors.New("no access token available")

// HTTPFetcher fetches quota utilization from the OAuth usage endpoint.
// The bearer token comes from an external credentials-helper command so
// no secret is ever persisted by this process.
type HTTPFetcher struct {
	Endpoint     string
	BetaHeader   string
	Timeout      time.Duration
	TokenCommand []string
	Client       *http.Client
}

type usageResponse struct {
	FiveHour *usageWindow `json:"five_hour"`
	SevenDay *usageWindow `json:"seven_day"`
}

type usageWindow struct {
	Utilization *float64 `json:"utilization"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (Entry, error) {
	token, err := f.accessToken(ctx)
	if err != nil {
		return Entry{}, err
	}

	endpoint := f.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	beta := f.BetaHeader
	if beta == "" {
		beta = DefaultBetaHeader
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("build quota request: %w", err)
	}
	req.Header.Set("anthropic-beta", beta)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return Entry{}, fmt.Errorf("quota request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Entry{}, fmt.Errorf("quota endpoint returned %s", resp.Status)
	}

	var body usageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Entry{}, fmt.Errorf("decode quota response: %w", err)
	}
	entry := Entry{}
	if body.FiveHour != nil {
		entry.FiveHour = body.FiveHour.Utilization
	}
	if body.SevenDay != nil {
		entry.SevenDay = body.SevenDay.Utilization
	}
	return entry, nil
}

func (f *HTTPFetcher) accessToken(ctx context.Context) (string, error) {
	if len(f.TokenCommand) == 0 {
		return "", ErrNoToken
	}
	cmd := exec.CommandContext(ctx, f.TokenCommand[0], f.TokenCommand[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("credentials helper: %w", err)
	}
	token := parseAccessToken(out)
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// parseAccessToken accepts either a bare token or the credential-store
// JSON shapes the helper may emit.
func parseAccessToken(raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ""
	}

	var creds struct {
		OAuth *struct {
			AccessToken string `json:"accessToken"`
			ExpiresAt   int64  `json:"expiresAt"`
		} `json:"claudeAiOauth"`
		AccessTokenCamel string `json:"accessToken"`
		AccessTokenSnake string `json:"access_token"`
	}
	if err := json.Unmarshal([]byte(trimmed), &creds); err != nil {
		// Not JSON: the helper printed the token itself.
		return trimmed
	}
	if creds.OAuth != nil && creds.OAuth.AccessToken != "" {
		if creds.OAuth.ExpiresAt > 0 && time.UnixMilli(creds.OAuth.ExpiresAt).Before(time.Now()) {
			return ""
		}
		return creds.OAuth.AccessToken
	}
	if creds.AccessTokenCamel != "" {
		return creds.AccessTokenCamel
	}
	return creds.AccessTokenSnake
}
