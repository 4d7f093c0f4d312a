package ui

import "sort"

// Constructor builds a demo's Blocks around an inference generator.
type Constructor func(gen Generator) *Blocks

// modules is the compiled-in table of demo UIs, keyed by demo name.
var modules = map[string]Constructor{
	"canny2image": func(gen Generator) *Blocks {
		return newBlocks("canny2image", "Control Stable Diffusion with Canny Edge Maps", gen, KindImage,
			slider("low_threshold", "Canny low threshold", 1, 255, 1, 100),
			slider("high_threshold", "Canny high threshold", 1, 255, 1, 200),
		)
	},
	"depth2image": func(gen Generator) *Blocks {
		return newBlocks("depth2image", "Control Stable Diffusion with Depth Maps", gen, KindImage,
			slider("detect_resolution", "Depth Resolution", 128, 1024, 1, 384),
		)
	},
	"fake_scribble2image": func(gen Generator) *Blocks {
		return newBlocks("fake_scribble2image", "Control Stable Diffusion with Fake Scribble Maps", gen, KindImage,
			slider("detect_resolution", "HED Resolution", 128, 1024, 1, 512),
		)
	},
	"hed2image": func(gen Generator) *Blocks {
		return newBlocks("hed2image", "Control Stable Diffusion with HED Maps", gen, KindImage,
			slider("detect_resolution", "HED Resolution", 128, 1024, 1, 512),
		)
	},
	"hough2image": func(gen Generator) *Blocks {
		return newBlocks("hough2image", "Control Stable Diffusion with Hough Line Maps", gen, KindImage,
			slider("detect_resolution", "Hough Resolution", 128, 1024, 1, 512),
			slider("value_threshold", "Hough value threshold (MLSD)", 0.01, 2.0, 0.01, 0.1),
			slider("distance_threshold", "Hough distance threshold (MLSD)", 0.01, 20.0, 0.01, 0.1),
		)
	},
	"normal2image": func(gen Generator) *Blocks {
		return newBlocks("normal2image", "Control Stable Diffusion with Normal Maps", gen, KindImage,
			slider("detect_resolution", "Normal Resolution", 128, 1024, 1, 384),
			slider("bg_threshold", "Normal background threshold", 0.0, 1.0, 0.01, 0.4),
		)
	},
	"pose2image": func(gen Generator) *Blocks {
		return newBlocks("pose2image", "Control Stable Diffusion with Human Pose", gen, KindImage,
			slider("detect_resolution", "OpenPose Resolution", 128, 1024, 1, 512),
		)
	},
	"scribble2image": func(gen Generator) *Blocks {
		return newBlocks("scribble2image", "Control Stable Diffusion with Scribble Maps", gen, KindImage)
	},
	"scribble2image_interactive": func(gen Generator) *Blocks {
		return newBlocks("scribble2image_interactive", "Control Stable Diffusion with Interactive Scribbles", gen, KindSketch)
	},
	"seg2image": func(gen Generator) *Blocks {
		return newBlocks("seg2image", "Control Stable Diffusion with Segmentation Maps", gen, KindImage,
			slider("detect_resolution", "Segmentation Resolution", 128, 1024, 1, 512),
		)
	},
}

// Lookup returns the constructor for demo.
func Lookup(demo string) (Constructor, bool) {
	c, ok := modules[demo]
	return c, ok
}

// Modules returns the names of all compiled-in demo UIs, sorted.
func Modules() []string {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Import builds the demo's Blocks and, like the upstream demo scripts, launches
// it straight away. Callers that host the Blocks themselves must replace the
// launcher with SetLauncher first; the default launcher blocks serving.
func Import(demo string, gen Generator) (*Blocks, bool, error) {
	c, ok := Lookup(demo)
	if !ok {
		return nil, false, nil
	}
	b := c(gen)
	if err := b.Launch(DefaultLaunchAddr); err != nil {
		return nil, true, err
	}
	return b, true, nil
}
