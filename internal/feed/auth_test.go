package feed

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestFetchToken(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantToken string
		wantErr   error
	}{
		{
			name:      "json reply",
			status:    http.StatusOK,
			body:      `{"AccessToken":"tok-123","ExpiresIn":3600}`,
			wantToken: "tok-123",
		},
		{
			name:      "bare token",
			status:    http.StatusOK,
			body:      "  tok-456\n",
			wantToken: "tok-456",
		},
		{
			name:    "empty body",
			status:  http.StatusOK,
			body:    "",
			wantErr: ErrAuthFailed,
		},
		{
			name:    "rejected",
			status:  http.StatusUnauthorized,
			body:    `{"error":"bad key"}`,
			wantErr: ErrAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBody string
			var gotContentType string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				gotContentType = r.Header.Get("Content-Type")
				data, _ := io.ReadAll(r.Body)
				gotBody = string(data)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			token, err := FetchToken(context.Background(), server.Client(), server.URL, "key", "client")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, "application/json", gotContentType)
			assert.Equal(t, "key", gjson.Get(gotBody, "api_key").String())
			assert.Equal(t, "client", gjson.Get(gotBody, "client_id").String())
		})
	}
}

func TestFetchToken_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := FetchToken(context.Background(), nil, url, "key", "client")
	assert.Error(t, err)
}
