package ui

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind is the widget type of a Component.
type Kind string

const (
	KindImage    Kind = "image"
	KindSketch   Kind = "sketchpad"
	KindTextbox  Kind = "textbox"
	KindSlider   Kind = "slider"
	KindNumber   Kind = "number"
	KindCheckbox Kind = "checkbox"
)

// Component is one input of a demo, in the order the predict endpoint expects it.
type Component struct {
	Name     string  `json:"name"`
	Label    string  `json:"label"`
	Kind     Kind    `json:"type"`
	Min      float64 `json:"minimum,omitempty"`
	Max      float64 `json:"maximum,omitempty"`
	Step     float64 `json:"step,omitempty"`
	Value    any     `json:"value,omitempty"`
	Advanced bool    `json:"advanced,omitempty"`
}

func slider(name, label string, lo, hi, step, value float64) Component {
	return Component{Name: name, Label: label, Kind: KindSlider, Min: lo, Max: hi, Step: step, Value: value, Advanced: true}
}

func textbox(name, label, value string, advanced bool) Component {
	return Component{Name: name, Label: label, Kind: KindTextbox, Value: value, Advanced: advanced}
}

// decodeNumber parses raw as a number and checks it against the slider range.
func (c Component) decodeNumber(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%s: expected a number", c.Name)
	}
	if c.Kind == KindSlider && (v < c.Min || v > c.Max) {
		return 0, fmt.Errorf("%s: %v is outside [%v, %v]", c.Name, v, c.Min, c.Max)
	}
	if c.wholeSteps() {
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s: %v is not a whole number", c.Name, v)
		}
		if math.Mod(v-c.Min, c.Step) != 0 {
			return 0, fmt.Errorf("%s: %v is not on a step of %v from %v", c.Name, v, c.Step, c.Min)
		}
	}
	return v, nil
}

// wholeSteps reports whether a slider only takes integer values.
func (c Component) wholeSteps() bool {
	return c.Kind == KindSlider && c.Step >= 1 && c.Step == math.Trunc(c.Step) && c.Min == math.Trunc(c.Min)
}

func (c Component) decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s: expected a string", c.Name)
	}
	return s, nil
}

func (c Component) decodeBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, fmt.Errorf("%s: expected a boolean", c.Name)
	}
	return b, nil
}
