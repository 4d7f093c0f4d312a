package provision

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudchase/controlnet-deploy/registry"
)

const (
	modelURL    = "https://weights.test/models/control_sd15_canny.pth"
	modelURL2   = "https://weights.test/models/control_sd15_extra.pth"
	detectorURL = "https://weights.test/annotator/ckpts/network-bsds500.pth"
)

// recorder captures the order files are started in and every progress value.
type recorder struct {
	mu     sync.Mutex
	files  []string
	values map[string][]int64
}

func newRecorder() *recorder { return &recorder{values: map[string][]int64{}} }

func (r *recorder) factory(file string, _ int64) Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, file)
	return &recordingProgress{r: r, file: file}
}

type recordingProgress struct {
	r    *recorder
	file string
}

func (p *recordingProgress) Set64(n int64) error {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	p.r.values[p.file] = append(p.r.values[p.file], n)
	return nil
}

func (p *recordingProgress) Finish() error { return nil }

func setupMock(t *testing.T) *http.Client {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func fileResponder(body []byte) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewBytesResponse(http.StatusOK, body)
		resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
		return resp, nil
	}
}

func payload(n int, b byte) []byte { return bytes.Repeat([]byte{b}, n) }

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestProvision_SingleModelNoDetectors(t *testing.T) {
	client := setupMock(t)
	body := payload(100_000, 'm')
	httpmock.RegisterResponder("GET", modelURL, fileResponder(body))

	layout := DefaultLayout(t.TempDir())
	rec := newRecorder()
	p := New(client, WithProgress(rec.factory))

	demo := registry.NewDemo("canny2image", []string{modelURL}, nil)
	record, err := p.Provision(context.Background(), demo, layout)
	require.NoError(t, err)

	assert.Equal(t, 1, countFiles(t, layout.ModelsDir))
	assert.Equal(t, 0, countFiles(t, layout.DetectorsDir))

	info, err := os.Stat(filepath.Join(layout.ModelsDir, "control_sd15_canny.pth"))
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), info.Size())

	require.Len(t, record.Files, 1)
	assert.Equal(t, KindModel, record.Files[0].Kind)
	assert.Equal(t, int64(len(body)), record.TotalSize())

	values := rec.values["control_sd15_canny.pth"]
	require.NotEmpty(t, values)
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "progress must not go backwards")
	}
	assert.Equal(t, int64(len(body)), values[len(values)-1])
}

func TestProvision_ModelsBeforeDetectors(t *testing.T) {
	client := setupMock(t)
	httpmock.RegisterResponder("GET", modelURL, fileResponder(payload(10, 'a')))
	httpmock.RegisterResponder("GET", modelURL2, fileResponder(payload(20, 'b')))
	httpmock.RegisterResponder("GET", detectorURL, fileResponder(payload(30, 'c')))

	layout := DefaultLayout(t.TempDir())
	rec := newRecorder()
	p := New(client, WithProgress(rec.factory))

	demo := registry.NewDemo("hed2image", []string{modelURL, modelURL2}, []string{detectorURL})
	record, err := p.Provision(context.Background(), demo, layout)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"control_sd15_canny.pth",
		"control_sd15_extra.pth",
		"network-bsds500.pth",
	}, rec.files)
	assert.Equal(t, 2, countFiles(t, layout.ModelsDir))
	assert.Equal(t, 1, countFiles(t, layout.DetectorsDir))
	assert.Len(t, record.Files, 3)
	assert.FileExists(t, filepath.Join(layout.DetectorsDir, "network-bsds500.pth"))
}

func TestProvision_MissingContentLength(t *testing.T) {
	client := setupMock(t)
	httpmock.RegisterResponder("GET", modelURL, func(*http.Request) (*http.Response, error) {
		return &http.Response{
			Status:        "200 OK",
			StatusCode:    http.StatusOK,
			Header:        http.Header{},
			Body:          io.NopCloser(bytes.NewReader(payload(64, 'x'))),
			ContentLength: -1,
		}, nil
	})

	layout := DefaultLayout(t.TempDir())
	_, err := New(client).Provision(context.Background(),
		registry.NewDemo("canny2image", []string{modelURL}, nil), layout)

	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.ErrorIs(t, err, ErrMissingContentLength)
	assert.NoFileExists(t, filepath.Join(layout.ModelsDir, "control_sd15_canny.pth"))
	assert.NoFileExists(t, layout.RecordPath())
}

func TestProvision_InvalidContentLength(t *testing.T) {
	client := setupMock(t)
	httpmock.RegisterResponder("GET", modelURL, func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusOK, "abc")
		resp.Header.Set("Content-Length", "three")
		return resp, nil
	})

	_, err := New(client).Provision(context.Background(),
		registry.NewDemo("canny2image", []string{modelURL}, nil), DefaultLayout(t.TempDir()))
	assert.ErrorIs(t, err, ErrInvalidContentLength)
}

func TestProvision_ShortBodyRemovesPartialFile(t *testing.T) {
	client := setupMock(t)
	httpmock.RegisterResponder("GET", modelURL, func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewBytesResponse(http.StatusOK, payload(10, 'x'))
		resp.Header.Set("Content-Length", "100")
		return resp, nil
	})

	layout := DefaultLayout(t.TempDir())
	_, err := New(client).Provision(context.Background(),
		registry.NewDemo("canny2image", []string{modelURL}, nil), layout)

	assert.ErrorIs(t, err, ErrShortBody)
	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, "copy", dlErr.Op)
	assert.NoFileExists(t, filepath.Join(layout.ModelsDir, "control_sd15_canny.pth"))
}

func TestProvision_StopsAtFirstFailure(t *testing.T) {
	client := setupMock(t)
	httpmock.RegisterResponder("GET", modelURL, httpmock.NewStringResponder(http.StatusNotFound, "gone"))
	httpmock.RegisterResponder("GET", detectorURL, fileResponder(payload(10, 'd')))

	layout := DefaultLayout(t.TempDir())
	_, err := New(client).Provision(context.Background(),
		registry.NewDemo("hed2image", []string{modelURL}, []string{detectorURL}), layout)

	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, 0, httpmock.GetCallCountInfo()["GET "+detectorURL])
	assert.Equal(t, 0, countFiles(t, layout.DetectorsDir))
}

func TestProvision_WriteFailure(t *testing.T) {
	client := setupMock(t)
	httpmock.RegisterResponder("GET", modelURL, fileResponder(payload(10, 'm')))

	layout := DefaultLayout(t.TempDir())
	// A directory squatting on the destination name makes the open fail.
	blocker := filepath.Join(layout.ModelsDir, "control_sd15_canny.pth")
	require.NoError(t, os.MkdirAll(blocker, 0o755))

	_, err := New(client).Provision(context.Background(),
		registry.NewDemo("canny2image", []string{modelURL}, nil), layout)

	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, "create", dlErr.Op)
	assert.DirExists(t, blocker)
}

func TestProvision_RerunOverwrites(t *testing.T) {
	client := setupMock(t)
	layout := DefaultLayout(t.TempDir())
	demo := registry.NewDemo("canny2image", []string{modelURL}, nil)
	dest := filepath.Join(layout.ModelsDir, "control_sd15_canny.pth")

	httpmock.RegisterResponder("GET", modelURL, fileResponder(payload(50, 'a')))
	_, err := New(client).Provision(context.Background(), demo, layout)
	require.NoError(t, err)

	httpmock.RegisterResponder("GET", modelURL, fileResponder(payload(20, 'b')))
	_, err = New(client).Provision(context.Background(), demo, layout)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload(20, 'b'), data)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestProvision_FailedRerunDropsRecord(t *testing.T) {
	client := setupMock(t)
	layout := DefaultLayout(t.TempDir())
	demo := registry.NewDemo("canny2image", []string{modelURL}, nil)

	httpmock.RegisterResponder("GET", modelURL, fileResponder(payload(50, 'a')))
	_, err := New(client).Provision(context.Background(), demo, layout)
	require.NoError(t, err)
	require.NoError(t, layout.VerifyRecord("canny2image"))

	httpmock.RegisterResponder("GET", modelURL, func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewBytesResponse(http.StatusOK, payload(10, 'b'))
		resp.Header.Set("Content-Length", "100")
		return resp, nil
	})
	_, err = New(client).Provision(context.Background(), demo, layout)
	require.ErrorIs(t, err, ErrShortBody)

	assert.NoFileExists(t, filepath.Join(layout.ModelsDir, "control_sd15_canny.pth"))
	assert.NoFileExists(t, layout.RecordPath())
	assert.ErrorContains(t, layout.VerifyRecord("canny2image"), "has not been provisioned")
}

func TestProvision_FollowsRedirects(t *testing.T) {
	body := payload(4096, 'r')
	mux := http.NewServeMux()
	mux.HandleFunc("/resolve/main/models/control_sd15_seg.pth", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/cdn/blob", http.StatusFound)
	})
	mux.HandleFunc("/cdn/blob", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	layout := DefaultLayout(t.TempDir())
	demo := registry.NewDemo("seg2image", []string{srv.URL + "/resolve/main/models/control_sd15_seg.pth"}, nil)
	_, err := New(srv.Client()).Provision(context.Background(), demo, layout)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(layout.ModelsDir, "control_sd15_seg.pth"))
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestProvision_ChunkedResponseHasNoSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("rest"))
	}))
	t.Cleanup(srv.Close)

	layout := DefaultLayout(t.TempDir())
	demo := registry.NewDemo("canny2image", []string{srv.URL + "/models/control_sd15_canny.pth"}, nil)
	_, err := New(srv.Client()).Provision(context.Background(), demo, layout)

	assert.ErrorIs(t, err, ErrMissingContentLength)
	assert.NoFileExists(t, filepath.Join(layout.ModelsDir, "control_sd15_canny.pth"))
}

func TestProvision_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "4")
		_, _ = w.Write([]byte("data"))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	layout := DefaultLayout(t.TempDir())
	demo := registry.NewDemo("canny2image", []string{srv.URL + "/models/control_sd15_canny.pth"}, nil)
	_, err := New(srv.Client()).Provision(ctx, demo, layout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(layout.ModelsDir, "control_sd15_canny.pth"))
}

func TestProvision_WritesRecord(t *testing.T) {
	client := setupMock(t)
	httpmock.RegisterResponder("GET", modelURL, fileResponder(payload(10, 'm')))

	layout := DefaultLayout(t.TempDir())
	_, err := New(client).Provision(context.Background(),
		registry.NewDemo("canny2image", []string{modelURL}, nil), layout)
	require.NoError(t, err)

	rec, err := layout.LoadRecord()
	require.NoError(t, err)
	assert.Equal(t, "canny2image", rec.Demo)
	assert.False(t, rec.CompletedAt.IsZero())

	assert.NoError(t, layout.VerifyRecord("canny2image"))
	assert.ErrorContains(t, layout.VerifyRecord("pose2image"), `provisioned for demo "canny2image"`)
}
