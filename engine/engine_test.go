package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) *http.Client {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestGenerate_SendsRequestAndDecodesImages(t *testing.T) {
	client := setupMock(t)

	var got PredictRequest
	httpmock.RegisterResponder("POST", "http://worker:8000/predict",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, PredictResponse{
				Images: [][]byte{[]byte("detected"), []byte("sample")},
			})
		})

	e := New("http://worker:8000/", "canny2image", client)
	opts := DefaultOptions()
	opts.Prompt = "a bird"
	opts.Params = map[string]float64{"low_threshold": 100}

	images, err := e.Generate(context.Background(), []byte("png"), opts)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, []byte("sample"), images[1])

	assert.Equal(t, "canny2image", got.Demo)
	assert.Equal(t, []byte("png"), got.Image)
	assert.Equal(t, "a bird", got.Options.Prompt)
	assert.InDelta(t, 100.0, got.Options.Params["low_threshold"], 0.001)
}

func TestGenerate_BackendError(t *testing.T) {
	client := setupMock(t)
	httpmock.RegisterResponder("POST", "http://worker/predict",
		httpmock.NewStringResponder(http.StatusInternalServerError, "CUDA out of memory"))

	_, err := New("http://worker", "pose2image", client).Generate(context.Background(), nil, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestGenerate_NoBackend(t *testing.T) {
	e := New("", "pose2image", nil)
	assert.False(t, e.Configured())

	_, err := e.Generate(context.Background(), nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoBackend)
	assert.ErrorIs(t, e.Health(context.Background()), ErrNoBackend)
}

func TestHealth(t *testing.T) {
	client := setupMock(t)
	httpmock.RegisterResponder("GET", "http://worker/health", httpmock.NewStringResponder(http.StatusOK, "ok"))

	assert.NoError(t, New("http://worker", "seg2image", client).Health(context.Background()))

	httpmock.RegisterResponder("GET", "http://worker/health", httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
	assert.Error(t, New("http://worker", "seg2image", client).Health(context.Background()))
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 512, opts.ImageResolution)
	assert.Equal(t, 20, opts.DDIMSteps)
	assert.Equal(t, int64(-1), opts.Seed)
	assert.InDelta(t, 9.0, opts.Scale, 0.0001)
}
