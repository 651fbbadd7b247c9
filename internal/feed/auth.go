package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// maxAuthBody bounds how much of the authentication response is read.
const maxAuthBody = 1 << 20

// FetchToken exchanges API credentials for a stream access token.
//
// The token is the AccessToken field of a JSON reply; servers that answer
// with the bare token are accepted as well.
func FetchToken(ctx context.Context, client *http.Client, url, apiKey, clientID string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(map[string]string{
		"api_key":   apiKey,
		"client_id": clientID,
	})
	if err != nil {
		return "", fmt.Errorf("encoding credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending auth request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthBody))
	if err != nil {
		return "", fmt.Errorf("reading auth response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}

	text := string(data)
	if tok := gjson.Get(text, "AccessToken"); gjson.Valid(text) && tok.Type == gjson.String && tok.Str != "" {
		return tok.Str, nil
	}

	token := strings.TrimSpace(text)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuthFailed)
	}
	return token, nil
}
