package infrastructure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyIsNoob/khytool/internal/domain"
)

func TestDirectStream_Success(t *testing.T) {
	payload := make([]byte, 64*1024)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=0-", r.Header.Get("Range"))
		w.Write(payload)
	}))
	defer srv.Close()

	outputPath := filepath.Join(t.TempDir(), "out.mp4")
	d := NewDirectStreamer(nil)

	var percents []int
	err := d.Download(context.Background(), srv.URL, outputPath, "", func(percent int, speed, downloaded, total, eta string) {
		percents = append(percents, percent)
	})
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	require.NotEmpty(t, percents, "final progress always reported")
	assert.Equal(t, 100, percents[len(percents)-1])
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1], "percent never decreases")
	}
}

func TestDirectStream_IndeterminateLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunked response: no Content-Length
		flusher := w.(http.Flusher)
		w.Write(make([]byte, 16*1024))
		flusher.Flush()
		time.Sleep(250 * time.Millisecond)
		w.Write(make([]byte, 16*1024))
	}))
	defer srv.Close()

	outputPath := filepath.Join(t.TempDir(), "out.mp4")
	d := NewDirectStreamer(nil)

	sawIndeterminate := false
	err := d.Download(context.Background(), srv.URL, outputPath, "", func(percent int, speed, downloaded, total, eta string) {
		if percent == 50 && total == "unknown" {
			sawIndeterminate = true
		}
	})
	require.NoError(t, err)
	assert.True(t, sawIndeterminate, "unknown total reports 50 percent")
}

func TestDirectStream_CancellationDeletesPartial(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(http.StatusOK)
		w.Write(make([]byte, 32*1024))
		flusher.Flush()
		<-release // hold the rest of the body until the test is done
	}))
	defer srv.Close()
	defer close(release)

	outputPath := filepath.Join(t.TempDir(), "out.mp4")
	d := NewDirectStreamer(nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := d.Download(ctx, srv.URL, outputPath, "", nil)
	assert.ErrorIs(t, err, domain.ErrCancelled)

	_, statErr := os.Stat(outputPath)
	assert.True(t, os.IsNotExist(statErr), "partial file deleted on cancel")
}

func TestDirectStream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	outputPath := filepath.Join(t.TempDir(), "out.mp4")
	err := NewDirectStreamer(nil).Download(context.Background(), srv.URL, outputPath, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	_, statErr := os.Stat(outputPath)
	assert.True(t, os.IsNotExist(statErr))
}
