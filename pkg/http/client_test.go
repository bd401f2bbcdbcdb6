package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files":
			assert.Equal(t, "k", r.Header.Get("x-apikey"))
			assert.Equal(t, "socpulse-test", r.Header.Get("User-Agent"))
			assert.Equal(t, "abc", r.URL.Query().Get("hash"))
			_ = json.NewEncoder(w).Encode(map[string]int{"malicious": 3})
		case "/policies":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "block", in["name"])
			w.WriteHeader(http.StatusNoContent)
		case "/big":
			_, _ = w.Write([]byte(`{"padding": "` + string(make([]byte, 64)) + `"}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("slow down"))
		}
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("socpulse-test"))
	ctx := context.Background()

	var out map[string]int
	err := c.SendAndParse(ctx, &RequestOptions{
		Method:  MethodGet,
		URL:     srv.URL + "/files",
		Headers: map[string]string{"x-apikey": "k"},
		Query:   url.Values{"hash": {"abc"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, out["malicious"])

	err = c.SendAndParse(ctx, &RequestOptions{
		Method: MethodPost,
		URL:    srv.URL + "/policies",
		Body:   map[string]string{"name": "block"},
	}, &out)
	require.NoError(t, err)

	err = c.SendAndParse(ctx, &RequestOptions{Method: MethodGet, URL: srv.URL + "/other"}, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, "slow down", se.Body)
	assert.True(t, se.Retryable())

	small := NewClient(WithMaxBody(16))
	var big map[string]string
	assert.Error(t, small.SendAndParse(ctx, &RequestOptions{Method: MethodGet, URL: srv.URL + "/big"}, &big))
}
