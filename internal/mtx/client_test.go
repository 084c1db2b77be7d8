package mtx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := &Client{
		BaseURL: ts.URL,
		Timeout: 5 * time.Second,
	}
	c.Initialize()
	return c, ts
}

func TestClientCheckHealth(t *testing.T) {
	c, ts := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/config/global/get", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"logLevel":"info"}`))
	}))
	defer ts.Close()

	err := c.CheckHealth(context.Background())
	require.NoError(t, err)
}

func TestClientUnreachable(t *testing.T) {
	c := &Client{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 500 * time.Millisecond,
	}
	c.Initialize()

	err := c.CheckHealth(context.Background())
	require.ErrorIs(t, err, ErrServerUnreachable)
}

func TestClientStatusError(t *testing.T) {
	c, ts := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"path not found"}`))
	}))
	defer ts.Close()

	err := c.ConfigPathsDelete(context.Background(), "camera0")
	require.Error(t, err)
	require.True(t, IsNotFound(err))
	require.Contains(t, err.Error(), "path not found")
}

func TestClientConfigPathsAdd(t *testing.T) {
	c, ts := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v3/config/paths/add/camera0", r.URL.Path)

		var conf PathConf
		err := json.NewDecoder(r.Body).Decode(&conf)
		require.NoError(t, err)
		require.Contains(t, conf.RunOnInit, "/dev/video0")
		require.True(t, conf.RunOnInitRestart)

		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	err := c.ConfigPathsAdd(context.Background(), "camera0", &PathConf{
		RunOnInit:        "ffmpeg -f v4l2 -i /dev/video0 -f rtsp rtsp://127.0.0.1:8554/camera0",
		RunOnInitRestart: true,
	})
	require.NoError(t, err)
}

func TestClientPathsList(t *testing.T) {
	c, ts := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/paths/list", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"itemCount":1,"pageCount":1,"items":[{"name":"camera0","ready":true}]}`))
	}))
	defer ts.Close()

	list, err := c.PathsList(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, list.ItemCount)
	require.Equal(t, "camera0", list.Items[0].Name)
	require.True(t, list.Items[0].Ready)
}
