package ui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudchase/controlnet-deploy/engine"
)

// ErrNoImage is returned when a prediction has no input image.
var ErrNoImage = errors.New("input image is required")

// PredictRequest is the body of /run/predict and of the queue's data message.
// Data holds one value per component, in component order; trailing values may
// be omitted and take their defaults.
type PredictRequest struct {
	Data    []json.RawMessage `json:"data"`
	FnIndex int               `json:"fn_index"`
}

// PredictResponse holds the output gallery as data URLs.
type PredictResponse struct {
	Data         []string `json:"data"`
	Duration     float64  `json:"duration"`
	IsGenerating bool     `json:"is_generating"`
}

// prediction is a validated request ready for the generator.
type prediction struct {
	image []byte
	opts  engine.GenerateOptions
}

// parse validates data against the components and builds generator options.
func (b *Blocks) parse(data []json.RawMessage) (*prediction, error) {
	if len(data) > len(b.Components) {
		return nil, fmt.Errorf("got %d inputs, demo %s takes %d", len(data), b.Demo, len(b.Components))
	}

	p := &prediction{opts: engine.DefaultOptions()}
	for i, c := range b.Components {
		if i >= len(data) || string(data[i]) == "null" {
			if v, ok := c.Value.(float64); ok {
				setNumber(&p.opts, c.Name, v)
			}
			continue
		}
		raw := data[i]
		switch c.Kind {
		case KindImage, KindSketch:
			s, err := c.decodeString(raw)
			if err != nil {
				return nil, err
			}
			img, err := decodeDataURL(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", c.Name, err)
			}
			p.image = img
		case KindTextbox:
			s, err := c.decodeString(raw)
			if err != nil {
				return nil, err
			}
			setText(&p.opts, c.Name, s)
		case KindCheckbox:
			v, err := c.decodeBool(raw)
			if err != nil {
				return nil, err
			}
			if c.Name == "guess_mode" {
				p.opts.GuessMode = v
			}
		case KindSlider, KindNumber:
			v, err := c.decodeNumber(raw)
			if err != nil {
				return nil, err
			}
			setNumber(&p.opts, c.Name, v)
		}
	}
	if len(p.image) == 0 {
		return nil, ErrNoImage
	}

	img, err := PrepareImage(p.image, p.opts.ImageResolution)
	if err != nil {
		return nil, err
	}
	p.image = img
	return p, nil
}

func setText(o *engine.GenerateOptions, name, v string) {
	switch name {
	case "prompt":
		o.Prompt = v
	case "a_prompt":
		o.AddedPrompt = v
	case "n_prompt":
		o.NegativePrompt = v
	}
}

func setNumber(o *engine.GenerateOptions, name string, v float64) {
	switch name {
	case "num_samples":
		o.NumSamples = int(v)
	case "image_resolution":
		o.ImageResolution = int(v)
	case "ddim_steps":
		o.DDIMSteps = int(v)
	case "strength":
		o.Strength = v
	case "scale":
		o.Scale = v
	case "seed":
		o.Seed = int64(v)
	case "eta":
		o.Eta = v
	default:
		if o.Params == nil {
			o.Params = make(map[string]float64)
		}
		o.Params[name] = v
	}
}

// run sends p to the generator and encodes the gallery.
func (b *Blocks) run(ctx context.Context, p *prediction) (*PredictResponse, error) {
	if b.gen == nil {
		return nil, engine.ErrNoBackend
	}
	start := time.Now()
	images, err := b.gen.Generate(ctx, p.image, p.opts)
	if err != nil {
		return nil, err
	}
	out := &PredictResponse{Data: make([]string, 0, len(images))}
	for _, img := range images {
		out.Data = append(out.Data, encodeDataURL(img))
	}
	out.Duration = time.Since(start).Seconds()
	b.logger().Info("prediction complete", "demo", b.Demo, "images", len(images), "duration", out.Duration)
	return out, nil
}

const pngDataURLPrefix = "data:image/png;base64,"

func encodeDataURL(png []byte) string {
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(png)
}

// decodeDataURL accepts a data URL or bare base64.
func decodeDataURL(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return nil, errors.New("malformed data URL")
		}
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}
