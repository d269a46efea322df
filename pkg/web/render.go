package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/amiskov/authgate/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	t, err := template.New("base").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web: can't parse templates, %w", err)
	}
	return &Renderer{templates: t}, nil
}

// Render executes the named page into a buffer first so a template error
// never leaves a half written response.
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := rd.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Log(r.Context()).Errorf("web: template `%s` render failed, %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Base carries what every page layout reads. Page data structs embed it.
type Base struct {
	Title string
	CSRF  string
	// Refresh reloads the page after that many seconds when set.
	Refresh int
}
