package ui

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cloudchase/controlnet-deploy/engine"
)

const maxPredictBody = 32 << 20

// Config is served at /config for front-ends that render the demo themselves.
type Config struct {
	Demo        string      `json:"demo"`
	Title       string      `json:"title"`
	EnableQueue bool        `json:"enable_queue"`
	Components  []Component `json:"components"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (b *Blocks) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", b.handleIndex)
	r.Get("/config", b.handleConfig)
	r.Post("/run/predict", b.handlePredict)
	r.Get("/queue/join", b.handleQueueJoin)
	return r
}

func (b *Blocks) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Config{
		Demo:        b.Demo,
		Title:       b.Title,
		EnableQueue: b.QueueEnabled,
		Components:  b.Components,
	})
}

func (b *Blocks) handlePredict(w http.ResponseWriter, r *http.Request) {
	if b.QueueEnabled {
		writeError(w, http.StatusConflict, "queue is enabled; submit through /queue/join")
		return
	}

	var req PredictRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxPredictBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p, err := b.parse(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := b.run(r.Context(), p)
	if err != nil {
		b.logger().Error("prediction failed", "demo", b.Demo, "error", err)
		writeError(w, predictStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func predictStatus(err error) int {
	if errors.Is(err, engine.ErrNoBackend) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<form id="demo">
{{range .Components}}<label>{{.Label}}
{{if or (eq .Kind "image") (eq .Kind "sketchpad")}}<input type="file" name="{{.Name}}" accept="image/*">
{{else if eq .Kind "checkbox"}}<input type="checkbox" name="{{.Name}}">
{{else if eq .Kind "textbox"}}<input type="text" name="{{.Name}}" value="{{.Value}}">
{{else if eq .Kind "slider"}}<input type="range" name="{{.Name}}" min="{{.Min}}" max="{{.Max}}" step="{{.Step}}" value="{{.Value}}">
{{else}}<input type="number" name="{{.Name}}" value="{{.Value}}">
{{end}}</label><br>
{{end}}<button type="submit">Run</button>
</form>
<div id="gallery"></div>
<script>
const components = {{.Components}};
document.getElementById("demo").addEventListener("submit", async (ev) => {
  ev.preventDefault();
  const form = ev.target;
  const data = [];
  for (const c of components) {
    const el = form.elements[c.name];
    if (c.type === "image" || c.type === "sketchpad") {
      const f = el.files[0];
      data.push(f ? await new Promise(r => { const fr = new FileReader(); fr.onload = () => r(fr.result); fr.readAsDataURL(f); }) : null);
    } else if (c.type === "checkbox") {
      data.push(el.checked);
    } else if (c.type === "textbox") {
      data.push(el.value);
    } else {
      data.push(Number(el.value));
    }
  }
  const resp = await fetch("run/predict", {method: "POST", headers: {"Content-Type": "application/json"}, body: JSON.stringify({data})});
  const out = await resp.json();
  const gallery = document.getElementById("gallery");
  gallery.innerHTML = "";
  if (!resp.ok) { gallery.textContent = out.error; return; }
  for (const src of out.data) { const img = document.createElement("img"); img.src = src; gallery.appendChild(img); }
});
</script>
</body>
</html>
`))

// handleIndex serves the page. The page fetches run/predict relative to its
// own URL, so a mount path without a trailing slash is redirected to one.
func (b *Blocks) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/") {
		target := r.URL.Path + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, b); err != nil {
		b.logger().Error("render index", "demo", b.Demo, "error", err)
	}
}
