package registry

import "slices"

// Demo describes a ControlNet demo app and the weight files it needs.
// A Demo is immutable: accessors hand out copies of the file lists.
type Demo struct {
	name          string
	modelFiles    []string
	detectorFiles []string
}

// NewDemo creates a Demo. The URL slices are copied.
func NewDemo(name string, modelFiles, detectorFiles []string) Demo {
	return Demo{
		name:          name,
		modelFiles:    slices.Clone(modelFiles),
		detectorFiles: slices.Clone(detectorFiles),
	}
}

// Name returns the demo's unique identifier.
func (d Demo) Name() string { return d.name }

// ModelFiles returns the URLs of the primary ControlNet weights, in declaration order.
func (d Demo) ModelFiles() []string { return slices.Clone(d.modelFiles) }

// DetectorFiles returns the URLs of the annotator weights, in declaration order.
// It may be empty.
func (d Demo) DetectorFiles() []string { return slices.Clone(d.detectorFiles) }

// FileCount returns the total number of artifacts the demo requires.
func (d Demo) FileCount() int { return len(d.modelFiles) + len(d.detectorFiles) }

const (
	hfModels    = "https://huggingface.co/lllyasviel/ControlNet/resolve/main/models/"
	hfDetectors = "https://huggingface.co/lllyasviel/ControlNet/resolve/main/annotator/ckpts/"
)

// builtin lists the demos shipped with the ControlNet repository.
// Order matters only for All().
func builtin() []Demo {
	return []Demo{
		NewDemo("canny2image",
			[]string{hfModels + "control_sd15_canny.pth"},
			nil),
		NewDemo("depth2image",
			[]string{hfModels + "control_sd15_depth.pth"},
			[]string{hfDetectors + "dpt_hybrid-midas-501f0c75.pt"}),
		NewDemo("fake_scribble2image",
			[]string{hfModels + "control_sd15_scribble.pth"},
			[]string{hfDetectors + "network-bsds500.pth"}),
		NewDemo("hed2image",
			[]string{hfModels + "control_sd15_hed.pth"},
			[]string{hfDetectors + "network-bsds500.pth"}),
		NewDemo("hough2image",
			[]string{hfModels + "control_sd15_mlsd.pth"},
			[]string{
				hfDetectors + "mlsd_large_512_fp32.pth",
				hfDetectors + "mlsd_tiny_512_fp32.pth",
			}),
		NewDemo("normal2image",
			[]string{hfModels + "control_sd15_normal.pth"},
			nil),
		NewDemo("pose2image",
			[]string{hfModels + "control_sd15_openpose.pth"},
			[]string{
				hfDetectors + "body_pose_model.pth",
				hfDetectors + "hand_pose_model.pth",
			}),
		NewDemo("scribble2image",
			[]string{hfModels + "control_sd15_scribble.pth"},
			nil),
		NewDemo("scribble2image_interactive",
			[]string{hfModels + "control_sd15_scribble.pth"},
			nil),
		NewDemo("seg2image",
			[]string{hfModels + "control_sd15_seg.pth"},
			[]string{hfDetectors + "upernet_global_small.pth"}),
	}
}
