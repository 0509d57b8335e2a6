package devpost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan-cs/hackaplan/internal/apperr"
)

func fastClient() ClientConfig {
	return ClientConfig{
		Timeout:     2 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
	}
}

func TestFetchTextReturnsBody(t *testing.T) {
	var gotUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{UserAgent: "HackaplanBot/1.0", BackoffBase: time.Millisecond}, nil)
	body, err := client.FetchText(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)
	assert.Equal(t, "HackaplanBot/1.0", gotUA.Load())
}

func TestFetchTextRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	client := NewClient(fastClient(), nil)
	body, err := client.FetchText(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", body)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchTextExhaustedRetriesReturnsNetworkError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(fastClient(), nil)
	_, err := client.FetchText(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNetwork, apperr.CodeOf(err))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchTextBlockedStatusNeverRetries(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusTooManyRequests} {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts.Add(1)
			w.WriteHeader(status)
		}))

		client := NewClient(fastClient(), nil)
		_, err := client.FetchText(context.Background(), server.URL)
		server.Close()

		require.Error(t, err)
		assert.Equal(t, apperr.CodeBlocked, apperr.CodeOf(err))
		assert.Equal(t, int32(1), attempts.Load())
	}
}

func TestFetchTextOtherClientErrorsFailImmediately(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(fastClient(), nil)
	_, err := client.FetchText(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNetwork, apperr.CodeOf(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetchTextTimeoutClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer server.Close()

	client := NewClient(fastClient(), nil)
	_, err := client.FetchTextOpts(context.Background(), server.URL, FetchOptions{
		Timeout:     20 * time.Millisecond,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTimeout, apperr.CodeOf(err))
}

func TestFetchTextPerCallTimeoutCanExceedDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(60 * time.Millisecond)
		_, _ = w.Write([]byte("slow but fine"))
	}))
	defer server.Close()

	cfg := fastClient()
	cfg.Timeout = 20 * time.Millisecond
	client := NewClient(cfg, nil)

	body, err := client.FetchTextOpts(context.Background(), server.URL, FetchOptions{
		Timeout:    time.Second,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "slow but fine", body)
}

func TestFetchTextHonorsCallerCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(fastClient(), nil)
	_, err := client.FetchText(ctx, server.URL)
	require.Error(t, err)
}

func TestFetchJSONDecodesObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "widget", r.URL.Query().Get("search"))
		_, _ = w.Write([]byte(`{"hackathons":[{"title":"Widget Jam"}]}`))
	}))
	defer server.Close()

	client := NewClient(fastClient(), nil)
	params := url.Values{}
	params.Set("search", "widget")
	payload, err := client.FetchJSON(context.Background(), server.URL, params)
	require.NoError(t, err)
	require.Contains(t, payload, "hackathons")
}

func TestFetchJSONMalformedBodyIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := NewClient(fastClient(), nil)
	_, err := client.FetchJSON(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeParse, apperr.CodeOf(err))
}
