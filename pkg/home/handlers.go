// Package home serves the public landing page.
package home

import (
	"net/http"

	"github.com/amiskov/authgate/pkg/web"
)

var features = []string{
	"Secure sign-in backed by a remote authentication API",
	"Sessions that survive restarts and are restored on your next visit",
	"A personal dashboard with your account details",
}

type (
	IRenderer interface {
		Render(w http.ResponseWriter, r *http.Request, status int, name string, data any)
	}

	HomeHandler struct {
		Renderer IRenderer
	}

	homePage struct {
		web.Base
		Features []string
	}
)

func NewHomeHandler(rd IRenderer) *HomeHandler {
	return &HomeHandler{Renderer: rd}
}

func (hh HomeHandler) Index(w http.ResponseWriter, r *http.Request) {
	hh.Renderer.Render(w, r, http.StatusOK, "home", homePage{
		Base:     web.Base{Title: "Home"},
		Features: features,
	})
}
