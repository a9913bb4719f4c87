package http

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/map.html.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/map.html.tmpl"))

// PageConfig holds the values baked into the map page.
type PageConfig struct {
	Title        string
	YearMin      int
	YearMax      int
	PollInterval int // milliseconds
}

type pageData struct {
	PageConfig
	StartYear int
	EndYear   int
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	state := s.view.Snapshot()
	data := pageData{
		PageConfig: s.page,
		StartYear:  state.YearRange.Start,
		EndYear:    state.YearRange.End,
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		s.logger.Error("render page", "error", err)
		http.Error(w, "render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes()) //nolint:errcheck // client may have gone away
}
