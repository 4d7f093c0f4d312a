package engine

// GenerateOptions holds the sampling parameters shared by every ControlNet demo.
// Detector-specific knobs (thresholds, detect resolution) travel in Params.
type GenerateOptions struct {
	Prompt          string             `json:"prompt"`
	AddedPrompt     string             `json:"a_prompt"`
	NegativePrompt  string             `json:"n_prompt"`
	NumSamples      int                `json:"num_samples"`
	ImageResolution int                `json:"image_resolution"`
	DDIMSteps       int                `json:"ddim_steps"`
	GuessMode       bool               `json:"guess_mode"`
	Strength        float64            `json:"strength"`
	Scale           float64            `json:"scale"`
	Seed            int64              `json:"seed"`
	Eta             float64            `json:"eta"`
	Params          map[string]float64 `json:"params,omitempty"`
}

// DefaultOptions returns the defaults of the ControlNet gradio scripts.
func DefaultOptions() GenerateOptions {
	return GenerateOptions{
		AddedPrompt:     "best quality, extremely detailed",
		NegativePrompt:  "longbody, lowres, bad anatomy, bad hands, missing fingers, extra digit, fewer digits, cropped, worst quality, low quality",
		NumSamples:      1,
		ImageResolution: 512,
		DDIMSteps:       20,
		Strength:        1.0,
		Scale:           9.0,
		Seed:            -1,
		Eta:             0.0,
	}
}
