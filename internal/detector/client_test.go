package detector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/capture"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestDetect_DecodesLandmarks(t *testing.T) {
	var body []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ = io.ReadAll(r.Body)
		writeJSON(w, http.StatusOK, map[string]any{
			"detected": true,
			"width":    640,
			"height":   480,
			"face":     []map[string]float64{{"x": 0.5, "y": 0.3, "z": -0.01}},
			"pose":     []map[string]float64{{"x": 0.4, "y": 0.6, "z": 0, "visibility": 0.9}},
			"hands":    [][]map[string]float64{{{"x": 0.1, "y": 0.2, "z": 0}}},
		})
	})

	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	lf, err := c.Detect(context.Background(), capture.Frame{Seq: 7, Timestamp: ts, Data: []byte("jpeg")})
	require.NoError(t, err)
	require.NotNil(t, lf)
	assert.Equal(t, []byte("jpeg"), body)
	assert.EqualValues(t, 7, lf.Seq)
	assert.Equal(t, ts, lf.Timestamp)
	assert.Equal(t, 640, lf.Width)
	assert.Equal(t, 0.5, lf.Face[0].X)
	assert.Equal(t, 0.9, lf.Pose[0].Visibility)
	require.Len(t, lf.Hands, 1)
	assert.True(t, lf.HasHands())
}

func TestDetect_NoDetection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"detected": false})
	})

	lf, err := c.Detect(context.Background(), capture.Frame{Data: []byte("x")})
	assert.NoError(t, err)
	assert.Nil(t, lf)
}

func TestDetect_NoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	lf, err := c.Detect(context.Background(), capture.Frame{Data: []byte("x")})
	assert.NoError(t, err)
	assert.Nil(t, lf)
}

func TestDetect_ModelFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "model not loaded"})
	})

	_, err := c.Detect(context.Background(), capture.Frame{Data: []byte("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestCamera_OpenReadClose(t *testing.T) {
	var closed bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/camera/open":
			assert.Equal(t, "1", r.URL.Query().Get("camera"))
			w.WriteHeader(http.StatusOK)
		case "/camera/frame":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Header().Set("X-Frame-Width", "640")
			w.Header().Set("X-Frame-Height", "480")
			_, _ = w.Write([]byte{0xff, 0xd8})
		case "/camera/close":
			closed = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	src, err := c.OpenCamera(1)(context.Background())
	require.NoError(t, err)

	f, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, f.Data)
	assert.Equal(t, 640, f.Width)
	assert.Equal(t, 480, f.Height)
	assert.EqualValues(t, 1, f.Seq)

	require.NoError(t, src.Close())
	assert.True(t, closed)
}

func TestCamera_Unavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.OpenCamera(-1)(context.Background())
	assert.ErrorIs(t, err, capture.ErrDeviceUnavailable)
}

func TestCamera_FrameStatuses(t *testing.T) {
	status := http.StatusNoContent
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/camera/open" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(status)
	})

	src, err := c.OpenCamera(0)(context.Background())
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, capture.ErrNoFrame)

	status = http.StatusServiceUnavailable
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, capture.ErrDeviceUnavailable)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, c.Ping(context.Background()))
}
