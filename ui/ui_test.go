package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cloudchase/controlnet-deploy/engine"
	"github.com/cloudchase/controlnet-deploy/registry"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls []engine.GenerateOptions
	image []byte
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, image []byte, opts engine.GenerateOptions) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	f.image = image
	if f.err != nil {
		return nil, f.err
	}
	return [][]byte{[]byte("detected"), []byte("sample")}, nil
}

func testPNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return encodeDataURL(buf.Bytes())
}

func raw(t *testing.T, values ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func newTestBlocks(t *testing.T, demo string, gen Generator) *Blocks {
	t.Helper()
	c, ok := Lookup(demo)
	require.True(t, ok)
	b := c(gen)
	t.Cleanup(b.Close)
	return b
}

func TestModules_MatchRegistry(t *testing.T) {
	assert.Equal(t, registry.New().Names(), Modules())
}

func TestImport_LaunchesThroughInstalledLauncher(t *testing.T) {
	var launched []string
	prev := SetLauncher(func(b *Blocks, addr string) error {
		launched = append(launched, b.Demo+"@"+addr)
		return nil
	})
	t.Cleanup(func() { SetLauncher(prev) })

	b, found, err := Import("pose2image", &fakeGenerator{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "pose2image", b.Demo)
	assert.Equal(t, []string{"pose2image@" + DefaultLaunchAddr}, launched)

	_, found, err = Import("nope", &fakeGenerator{})
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestResizedDims(t *testing.T) {
	tests := []struct {
		w, h, res    int
		wantW, wantH int
	}{
		{512, 512, 512, 512, 512},
		{640, 480, 512, 704, 512},
		{1000, 300, 256, 832, 256},
		{100, 50, 256, 512, 256},
		{10, 10, 16, 64, 64},
	}
	for _, tt := range tests {
		w, h := resizedDims(tt.w, tt.h, tt.res)
		assert.Equal(t, tt.wantW, w, "%dx%d@%d", tt.w, tt.h, tt.res)
		assert.Equal(t, tt.wantH, h, "%dx%d@%d", tt.w, tt.h, tt.res)
	}
}

func TestPrepareImage(t *testing.T) {
	data, err := decodeDataURL(testPNG(t, 100, 50))
	require.NoError(t, err)

	out, err := PrepareImage(data, 256)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 512, cfg.Width)
	assert.Equal(t, 256, cfg.Height)

	_, err = PrepareImage([]byte("not an image"), 256)
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	b := newTestBlocks(t, "canny2image", &fakeGenerator{})

	t.Run("defaults fill omitted values", func(t *testing.T) {
		p, err := b.parse(raw(t, testPNG(t, 64, 64), "a bird"))
		require.NoError(t, err)
		assert.Equal(t, "a bird", p.opts.Prompt)
		assert.Equal(t, 512, p.opts.ImageResolution)
		assert.InDelta(t, 100.0, p.opts.Params["low_threshold"], 0.001)
		assert.InDelta(t, 200.0, p.opts.Params["high_threshold"], 0.001)
	})

	t.Run("all values positional", func(t *testing.T) {
		p, err := b.parse(raw(t, testPNG(t, 64, 64), "p", "ap", "np", 2, 256, 30, true, 1.5, 7.5, 42, 0.5, 50, 150))
		require.NoError(t, err)
		assert.Equal(t, 2, p.opts.NumSamples)
		assert.Equal(t, 256, p.opts.ImageResolution)
		assert.Equal(t, 30, p.opts.DDIMSteps)
		assert.True(t, p.opts.GuessMode)
		assert.Equal(t, int64(42), p.opts.Seed)
		assert.InDelta(t, 0.5, p.opts.Eta, 0.001)
		assert.InDelta(t, 50.0, p.opts.Params["low_threshold"], 0.001)
	})

	t.Run("out of range slider", func(t *testing.T) {
		_, err := b.parse(raw(t, testPNG(t, 64, 64), "p", "", "", 50))
		assert.ErrorContains(t, err, "num_samples")
	})

	t.Run("fractional integer slider", func(t *testing.T) {
		_, err := b.parse(raw(t, testPNG(t, 64, 64), "p", "", "", 1.9))
		assert.ErrorContains(t, err, "num_samples: 1.9 is not a whole number")
	})

	t.Run("resolution off the step grid", func(t *testing.T) {
		_, err := b.parse(raw(t, testPNG(t, 64, 64), "p", "", "", 1, 300))
		assert.ErrorContains(t, err, "image_resolution")
	})

	t.Run("fractional float slider", func(t *testing.T) {
		p, err := b.parse(raw(t, testPNG(t, 64, 64), "p", "", "", 1, 512, 20, false, 0.75))
		require.NoError(t, err)
		assert.InDelta(t, 0.75, p.opts.Strength, 0.001)
	})

	t.Run("missing image", func(t *testing.T) {
		_, err := b.parse(raw(t, nil, "p"))
		assert.ErrorIs(t, err, ErrNoImage)
	})

	t.Run("too many inputs", func(t *testing.T) {
		values := make([]any, len(b.Components)+1)
		_, err := b.parse(raw(t, values...))
		assert.ErrorContains(t, err, "inputs")
	})
}

func postPredict(t *testing.T, h http.Handler, data []json.RawMessage) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(PredictRequest{Data: data})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/run/predict", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPredict_QueueDisabled(t *testing.T) {
	gen := &fakeGenerator{}
	b := newTestBlocks(t, "hough2image", gen)
	b.QueueEnabled = false

	rec := postPredict(t, b, raw(t, testPNG(t, 128, 64), "a room"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PredictResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data, 2)
	assert.True(t, strings.HasPrefix(resp.Data[0], pngDataURLPrefix))

	require.Len(t, gen.calls, 1)
	assert.InDelta(t, 0.1, gen.calls[0].Params["value_threshold"], 0.0001)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(gen.image))
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Height)
}

func TestPredict_RefusedWhileQueueEnabled(t *testing.T) {
	b := newTestBlocks(t, "seg2image", &fakeGenerator{})
	require.True(t, b.QueueEnabled)

	rec := postPredict(t, b, raw(t, testPNG(t, 64, 64)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPredict_NoBackend(t *testing.T) {
	b := newTestBlocks(t, "depth2image", engine.New("", "depth2image", nil))
	b.QueueEnabled = false

	rec := postPredict(t, b, raw(t, testPNG(t, 64, 64)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPredict_BadInput(t *testing.T) {
	b := newTestBlocks(t, "normal2image", &fakeGenerator{})
	b.QueueEnabled = false

	rec := postPredict(t, b, raw(t, "data:image/png;base64,!!!"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigAndIndex(t *testing.T) {
	b := newTestBlocks(t, "scribble2image_interactive", &fakeGenerator{})

	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg Config
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Equal(t, "scribble2image_interactive", cfg.Demo)
	assert.Equal(t, KindSketch, cfg.Components[0].Kind)
	assert.True(t, cfg.EnableQueue)

	rec = httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Control Stable Diffusion with Interactive Scribbles")
}

func TestQueueJoin_NotFoundWhenDisabled(t *testing.T) {
	b := newTestBlocks(t, "canny2image", &fakeGenerator{})
	b.QueueEnabled = false

	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue/join", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueJoin_ProcessesPrediction(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gen := &fakeGenerator{}
	c, _ := Lookup("canny2image")
	b := c(gen)
	defer b.Close()

	srv := httptest.NewServer(b)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/queue/join", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() QueueMessage {
		var m QueueMessage
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	m := read()
	require.Equal(t, msgSendHash, m.Msg)
	eventID := m.EventID
	assert.NotEmpty(t, eventID)
	require.NoError(t, conn.WriteJSON(hashMessage{SessionHash: "abc"}))

	require.Equal(t, msgSendData, read().Msg)
	require.NoError(t, conn.WriteJSON(PredictRequest{Data: raw(t, testPNG(t, 64, 64), "a cat")}))

	m = read()
	require.Equal(t, msgEstimation, m.Msg)
	require.NotNil(t, m.Rank)
	assert.Equal(t, 0, *m.Rank)

	assert.Equal(t, msgProcessStarts, read().Msg)

	m = read()
	require.Equal(t, msgProcessCompleted, m.Msg)
	require.NotNil(t, m.Success)
	assert.True(t, *m.Success)
	require.NotNil(t, m.Output)
	assert.Len(t, m.Output.Data, 2)
	assert.Equal(t, eventID, m.EventID)
}

func TestQueue_ClosedQueueRejects(t *testing.T) {
	b := newTestBlocks(t, "canny2image", &fakeGenerator{})
	b.Close()

	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue/join", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
