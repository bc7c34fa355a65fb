package web

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"

	appLog "sinulogmap/internal/log"
)

var pageTemplate = template.Must(template.New("index").Parse(indexTemplate))

type pageData struct {
	Title       string
	MapsAPIKey  string
	InitialView template.JS
}

// handleIndex renders the map page. ?date= preselects a schedule date;
// unknown dates are ignored so shared links keep working.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if date := r.URL.Query().Get("date"); date != "" {
		if err := sess.SelectDate(date); err != nil {
			appLog.Debug("ignoring page date", "date", date, "err", err)
		}
	}

	initial, err := json.Marshal(s.project(sess))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, pageData{
		Title:       "Sinulog Festival Map",
		MapsAPIKey:  s.cfg.MapsAPIKey,
		InitialView: template.JS(initial),
	}); err != nil {
		appLog.Error("render index failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
