package ui

import (
	_ "embed"
	"net/http"
)

//go:embed assets/app.css
var appCSS []byte

// ServeCSS serves the embedded stylesheet.
func ServeCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(appCSS)
}
