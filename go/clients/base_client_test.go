package clients

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseClientHeaders(t *testing.T) {
	var got http.Header
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewBaseClient(srv.URL + "/")
	assert.Equal(t, srv.URL, c.BaseURL())
	c.SetToken("abc")
	c.SetHeader("Accept", "application/json")

	resp, err := c.Post(context.Background(), "/api/x/", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp))
	assert.Equal(t, "Bearer abc", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, body)

	c.SetToken("")
	_, err = c.Get(context.Background(), "/api/x/")
	require.NoError(t, err)
	assert.Empty(t, got.Get("Authorization"))
}

func TestBaseClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"sin permiso"}`))
	}))
	defer srv.Close()

	c := NewBaseClient(srv.URL)
	_, err := c.Delete(context.Background(), "/api/admin/subastas/3/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatus))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.MethodDelete, apiErr.Method)
	assert.Equal(t, "/api/admin/subastas/3/", apiErr.Endpoint)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "sin permiso")
}

func TestBaseClientStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="r.xlsx"`)
		w.Write([]byte("PK\x03\x04"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	header, err := NewBaseClient(srv.URL).Stream(context.Background(), "/file", &buf)
	require.NoError(t, err)
	assert.Equal(t, "PK\x03\x04", buf.String())
	assert.Contains(t, header.Get("Content-Disposition"), "r.xlsx")
}

func TestBaseClientCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBaseClient(srv.URL).Get(ctx, "/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
