package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newModerationServer(t *testing.T, flagged bool, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/moderations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Input string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Title\n\nDescription", req.Input)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error": {"message": "upstream broke", "type": "server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "modr-1",
			"model": "omni-moderation-latest",
			"results": []map[string]interface{}{
				{"flagged": flagged},
			},
		})
	}))
}

func TestScreener_Flagged(t *testing.T) {
	tests := []struct {
		name    string
		flagged bool
		status  int
		want    bool
		wantErr bool
	}{
		{name: "clean text", flagged: false, status: http.StatusOK, want: false},
		{name: "flagged text", flagged: true, status: http.StatusOK, want: true},
		{name: "service error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newModerationServer(t, tt.flagged, tt.status)
			defer server.Close()

			s := NewScreener("sk-test", server.URL, "", 5*time.Second, nil, zap.NewNop())
			got, err := s.Flagged(context.Background(), "Title\n\nDescription")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
