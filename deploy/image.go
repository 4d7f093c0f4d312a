// Package deploy describes the container image and the GPU function the demo
// runs in. The platform reads these knobs; nothing here schedules anything.
package deploy

import (
	"fmt"
	"sort"
	"strings"
)

// StepKind is the type of an image build step.
type StepKind string

const (
	StepPip       StepKind = "pip"
	StepApt       StepKind = "apt"
	StepRun       StepKind = "run"
	StepProvision StepKind = "provision"
)

// Step is one layer of the image build, applied in order.
type Step struct {
	Kind StepKind          `toml:"kind"`
	Args []string          `toml:"args"`
	Pre  bool              `toml:"pre,omitempty"`
	Env  map[string]string `toml:"env,omitempty"`
}

// Image is the build recipe of the demo container.
type Image struct {
	Base          string `toml:"base"`
	PythonVersion string `toml:"python_version"`
	Steps         []Step `toml:"steps"`
}

const controlNetRepo = "https://github.com/lllyasviel/ControlNet.git"

var pipPackages = []string{
	"gradio==3.16.2",
	"albumentations==1.3.0",
	"opencv-contrib-python",
	"imageio==2.9.0",
	"imageio-ffmpeg==0.4.2",
	"pytorch-lightning==1.5.0",
	"omegaconf==2.1.1",
	"test-tube>=0.7.5",
	"streamlit==1.12.1",
	"einops==0.3.0",
	"transformers==4.19.2",
	"webdataset==0.2.5",
	"kornia==0.6",
	"open_clip_torch==2.0.2",
	"invisible-watermark>=0.1.5",
	"streamlit-drawable-canvas==0.8.0",
	"torchmetrics==0.6.0",
	"timm==0.6.12",
	"addict==2.4.0",
	"yapf==0.32.0",
	"prettytable==3.6.0",
	"safetensors==0.2.7",
	"basicsr==1.4.2",
	"tqdm~=4.64.1",
}

// DefaultImage returns the image recipe for demo, with ControlNet checked
// out into root and the demo's weights provisioned into it.
func DefaultImage(demo, root string) Image {
	return Image{
		Base:          "debian-slim",
		PythonVersion: "3.10",
		Steps: []Step{
			{Kind: StepPip, Args: append([]string(nil), pipPackages...)},
			{Kind: StepPip, Args: []string{"xformers"}, Pre: true},
			{Kind: StepApt, Args: []string{"git"}},
			// root is not empty, so clone into it via init + fetch + checkout.
			{Kind: StepRun, Args: []string{
				"cd " + root + " && git init .",
				"cd " + root + " && git remote add --fetch origin " + controlNetRepo,
				"cd " + root + " && git checkout main",
			}},
			{Kind: StepApt, Args: []string{"ffmpeg", "libsm6", "libxext6"}},
			{Kind: StepProvision, Args: []string{"--root", root}, Env: map[string]string{"DEMO_NAME": demo}},
		},
	}
}

// Dockerfile renders the recipe. The provisioning step runs the controlnet
// binary, which must be copied into the build context.
func (img Image) Dockerfile() (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM python:%s-slim\n", img.PythonVersion)
	for _, s := range img.Steps {
		switch s.Kind {
		case StepPip:
			flags := "--no-cache-dir"
			if s.Pre {
				flags += " --pre"
			}
			fmt.Fprintf(&b, "RUN pip install %s %s\n", flags, quoteAll(s.Args))
		case StepApt:
			fmt.Fprintf(&b, "RUN apt-get update && apt-get install -y --no-install-recommends %s && rm -rf /var/lib/apt/lists/*\n",
				strings.Join(s.Args, " "))
		case StepRun:
			for _, cmd := range s.Args {
				fmt.Fprintf(&b, "RUN %s\n", cmd)
			}
		case StepProvision:
			b.WriteString("COPY controlnet /usr/local/bin/controlnet\n")
			for _, k := range sortedKeys(s.Env) {
				fmt.Fprintf(&b, "ENV %s=%s\n", k, s.Env[k])
			}
			fmt.Fprintf(&b, "RUN controlnet provision %s\n", strings.Join(s.Args, " "))
		default:
			return "", fmt.Errorf("unknown build step %q", s.Kind)
		}
	}
	return b.String(), nil
}

// quoteAll single-quotes args containing shell metacharacters such as >= or ~=.
func quoteAll(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, "<>=~!* ") {
			out[i] = "'" + a + "'"
		} else {
			out[i] = a
		}
	}
	return strings.Join(out, " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
