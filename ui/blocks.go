// Package ui defines the web front-ends of the ControlNet demos: their inputs,
// the predict endpoint that forwards to the inference worker, and an optional
// websocket queue.
package ui

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cloudchase/controlnet-deploy/engine"
)

// Generator runs a prediction for a preprocessed input image.
// *engine.Engine satisfies it.
type Generator interface {
	Generate(ctx context.Context, image []byte, opts engine.GenerateOptions) ([][]byte, error)
}

// Blocks is a demo front-end. It is an http.Handler serving the page, the
// component config, the predict endpoint and, when QueueEnabled, the queue.
type Blocks struct {
	Demo       string
	Title      string
	Components []Component

	// QueueEnabled routes predictions through /queue/join and refuses direct
	// /run/predict calls.
	QueueEnabled bool
	// ConcurrencyCount is the number of queue workers.
	ConcurrencyCount int
	Logger           *slog.Logger

	gen Generator

	routerOnce sync.Once
	router     http.Handler

	queueOnce sync.Once
	queue     *queue
}

// newBlocks lays out the inputs the way the demo scripts do: input image,
// prompt, shared sampling controls, then demo-specific controls.
func newBlocks(demo, title string, gen Generator, input Kind, extra ...Component) *Blocks {
	d := engine.DefaultOptions()
	components := []Component{
		{Name: "input_image", Label: "Input Image", Kind: input},
		textbox("prompt", "Prompt", "", false),
		textbox("a_prompt", "Added Prompt", d.AddedPrompt, true),
		textbox("n_prompt", "Negative Prompt", d.NegativePrompt, true),
		slider("num_samples", "Images", 1, 12, 1, float64(d.NumSamples)),
		slider("image_resolution", "Image Resolution", 256, 768, 64, float64(d.ImageResolution)),
		slider("ddim_steps", "Steps", 1, 100, 1, float64(d.DDIMSteps)),
		{Name: "guess_mode", Label: "Guess Mode", Kind: KindCheckbox, Value: d.GuessMode, Advanced: true},
		slider("strength", "Control Strength", 0.0, 2.0, 0.01, d.Strength),
		slider("scale", "Guidance Scale", 0.1, 30.0, 0.1, d.Scale),
		slider("seed", "Seed", -1, 2147483647, 1, float64(d.Seed)),
		{Name: "eta", Label: "eta (DDIM)", Kind: KindNumber, Value: d.Eta, Advanced: true},
	}
	return &Blocks{
		Demo:             demo,
		Title:            title,
		Components:       append(components, extra...),
		QueueEnabled:     true,
		ConcurrencyCount: 1,
		gen:              gen,
	}
}

func (b *Blocks) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// ServeHTTP implements http.Handler.
func (b *Blocks) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.routerOnce.Do(func() { b.router = b.routes() })
	b.router.ServeHTTP(w, r)
}

// Close stops the queue workers, if any were started. The queue cannot be
// started after Close.
func (b *Blocks) Close() {
	b.queueOnce.Do(func() {})
	if b.queue != nil {
		b.queue.close()
	}
}
