package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/technosupport/ts-console/internal/alerts"
	"github.com/technosupport/ts-console/internal/console"
	"github.com/technosupport/ts-console/internal/search"
	"github.com/technosupport/ts-console/internal/upload"
)

type ConsoleHandler struct {
	Registry       *console.Registry
	SpoolDir       string
	MaxUploadBytes int64
	Log            *zap.Logger
}

func (h *ConsoleHandler) console(w http.ResponseWriter, r *http.Request) (*console.Console, bool) {
	c, err := h.Registry.Get(chi.URLParam(r, "id"))
	if errors.Is(err, console.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Console not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load console")
		return nil, false
	}
	return c, true
}

// POST /api/v1/consoles
func (h *ConsoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	c := h.Registry.Create()
	respondJSON(w, http.StatusCreated, c.State())
}

// GET /api/v1/consoles/{id}
func (h *ConsoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.console(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, c.State())
}

// DELETE /api/v1/consoles/{id}
func (h *ConsoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Remove(chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusNotFound, "Console not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/consoles/{id}/upload
func (h *ConsoleHandler) Upload(w http.ResponseWriter, r *http.Request) {
	c, ok := h.console(w, r)
	if !ok {
		return
	}

	if h.MaxUploadBytes > 0 {
		if r.ContentLength > h.MaxUploadBytes {
			respondError(w, http.StatusRequestEntityTooLarge, "Video exceeds the upload size limit")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "Expected multipart form data")
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.uploadFailed(w, err)
			return
		}
		if part.FormName() != upload.FieldName || part.FileName() == "" {
			part.Close()
			continue
		}

		f, err := upload.Spool(h.SpoolDir, part.FileName(), part)
		part.Close()
		if err != nil {
			h.uploadFailed(w, err)
			return
		}
		h.Log.Debug("upload spooled",
			zap.String("console_id", c.ID()),
			zap.String("file", f.Name()),
			zap.Int64("bytes", f.Size()))
		respondJSON(w, http.StatusAccepted, c.SelectFile(f))
		return
	}

	respondError(w, http.StatusBadRequest, "Missing video file")
}

func (h *ConsoleHandler) uploadFailed(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		respondError(w, http.StatusRequestEntityTooLarge, "Video exceeds the upload size limit")
		return
	}
	h.Log.Warn("upload intake failed", zap.Error(err))
	respondError(w, http.StatusBadRequest, "Could not read uploaded video")
}

// DELETE /api/v1/consoles/{id}/upload
func (h *ConsoleHandler) ResetUpload(w http.ResponseWriter, r *http.Request) {
	c, ok := h.console(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, c.ResetUpload())
}

// POST /api/v1/consoles/{id}/search/{facet}
func (h *ConsoleHandler) Search(w http.ResponseWriter, r *http.Request) {
	facet, err := search.ParseFacet(chi.URLParam(r, "facet"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Unknown search facet")
		return
	}
	c, ok := h.console(w, r)
	if !ok {
		return
	}

	value, err := searchValue(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid search request")
		return
	}

	sess, _ := c.Search(facet, value)
	respondJSON(w, http.StatusAccepted, sess)
}

// searchValue reads {"value": ...} JSON or a form field named value.
func searchValue(r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
			return "", err
		}
		return req.Value, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.FormValue("value"), nil
}

// GET /api/v1/consoles/{id}/alerts?range=today&critical=true
func (h *ConsoleHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	c, ok := h.console(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	rng, err := alerts.ParseRange(q.Get("range"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Unknown date range")
		return
	}
	critical := false
	if v := strings.TrimSpace(q.Get("critical")); v != "" {
		critical, err = strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "critical must be true or false")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"range":         rng,
		"critical_only": critical,
		"cards":         c.Alerts(rng, critical),
	})
}

// POST /api/v1/consoles/{id}/alerts/{alertID}/expand
func (h *ConsoleHandler) ExpandAlert(w http.ResponseWriter, r *http.Request) {
	c, ok := h.console(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "alertID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}

	card, err := c.ExpandAlert(id)
	if errors.Is(err, alerts.ErrUnknownAlert) {
		respondError(w, http.StatusNotFound, "Alert not found")
		return
	}
	respondJSON(w, http.StatusOK, card)
}

// DELETE /api/v1/consoles/{id}/alerts/expanded
func (h *ConsoleHandler) CollapseAlert(w http.ResponseWriter, r *http.Request) {
	c, ok := h.console(w, r)
	if !ok {
		return
	}
	c.CollapseAlert()
	w.WriteHeader(http.StatusNoContent)
}
