package httputil

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockHTTPClient_QueuedResponses(t *testing.T) {
	mock := NewMockHTTPClient().
		AddResponse(201, `{"ok":true}`).
		AddResponse(503, "busy")

	resp, err := mock.Post("http://example.test/a", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, `{"ok":true}`, string(body))

	resp, err = mock.Post("http://example.test/b", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
	resp.Body.Close()
}

func TestMockHTTPClient_ExhaustedQueueReturnsEmpty200(t *testing.T) {
	mock := NewMockHTTPClient()

	resp, err := mock.Post("http://example.test", "text/plain", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestMockHTTPClient_ErrorResponse(t *testing.T) {
	mock := NewMockHTTPClient().AddErrorResponse(errors.New("connection refused"))

	_, err := mock.Post("http://example.test", "text/plain", nil)
	assert.Error(t, err)
}

func TestMockHTTPClient_DefaultError(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.DefaultError = errors.New("network down")

	_, err := mock.Do(mustRequest(t, http.MethodGet, "http://example.test"))
	assert.Error(t, err)
	assert.Equal(t, 1, mock.RequestCount(), "request is recorded even when it fails")
}

func TestMockHTTPClient_CapturesRequestBodies(t *testing.T) {
	mock := NewMockHTTPClient()

	_, err := mock.Post("http://example.test/hook", "application/json", strings.NewReader(`{"room":"lobby"}`))
	require.NoError(t, err)

	require.Equal(t, 1, mock.RequestCount())
	assert.Equal(t, `{"room":"lobby"}`, mock.Bodies[0])
	assert.Equal(t, "application/json", mock.Requests[0].Header.Get("Content-Type"))
	assert.Equal(t, "/hook", mock.Requests[0].URL.Path)
}

func TestNewStandardClient_NilUsesDefault(t *testing.T) {
	c := NewStandardClient(nil)
	require.NotNil(t, c.Client)
	assert.Same(t, http.DefaultClient, c.Client)
}

func mustRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	return req
}
