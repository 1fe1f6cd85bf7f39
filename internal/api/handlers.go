package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/starford/attic/internal/attachservice"
	"github.com/starford/attic/internal/journal"
	"github.com/starford/attic/internal/settings"
)

// Handler holds API route handlers.
type Handler struct {
	svc *attachservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *attachservice.Service) *Handler {
	return &Handler{svc: svc}
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Get the organizer settings
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	settings.Settings
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Settings())
}

// UpdateSettings handles PUT /api/settings. The body is a partial settings
// document merged over the current one.
//
//	@Summary		Update the organizer settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		settings.Settings	true	"Fields to change"
//	@Success		200		{object}	settings.Settings
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	probe := h.svc.Settings()
	if err := json.Unmarshal(body, &probe); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	updated, err := h.svc.UpdateSettings(func(s *settings.Settings) error {
		return json.Unmarshal(body, s)
	})
	if err != nil {
		writeServiceError(w, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// PlanOrganize handles GET /api/organize/plan.
//
//	@Summary		Preview the moves an organize pass would make
//	@Tags			organize
//	@Produce		json
//	@Success		200	{object}	attachservice.Plan
//	@Security		BearerAuth
//	@Router			/organize/plan [get]
func (h *Handler) PlanOrganize(w http.ResponseWriter, r *http.Request) {
	plan, err := h.svc.Plan(r.Context())
	if err != nil {
		writeServiceError(w, "plan organize", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Organize handles POST /api/organize.
//
//	@Summary		Run an organize pass
//	@Tags			organize
//	@Produce		json
//	@Success		200	{object}	attachservice.RunResult
//	@Security		BearerAuth
//	@Router			/organize [post]
func (h *Handler) Organize(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Organize(context.WithoutCancel(r.Context()))
	if err != nil {
		writeServiceError(w, "organize", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MoveFolder handles POST /api/move.
//
//	@Summary		Move attachments from one folder to another
//	@Tags			organize
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveFolderRequest	true	"Source and target folders"
//	@Success		200		{object}	attachservice.RunResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/move [post]
func (h *Handler) MoveFolder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req MoveFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	res, err := h.svc.MoveFolder(context.WithoutCancel(r.Context()), req.From, req.To)
	if err != nil {
		writeServiceError(w, "move folder", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListUnlinked handles GET /api/unlinked.
//
//	@Summary		List attachments no note refers to
//	@Tags			unlinked
//	@Produce		json
//	@Success		200	{object}	UnlinkedResponse
//	@Security		BearerAuth
//	@Router			/unlinked [get]
func (h *Handler) ListUnlinked(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.FindUnlinked(r.Context())
	if err != nil {
		writeServiceError(w, "find unlinked", err)
		return
	}
	writeJSON(w, http.StatusOK, UnlinkedResponse{Files: files, Count: len(files)})
}

// PurgeUnlinked handles POST /api/unlinked/purge.
//
//	@Summary		Delete unlinked attachments
//	@Tags			unlinked
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PurgeRequest	true	"Paths to delete, or all"
//	@Success		200		{object}	attachservice.PurgeRun
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/unlinked/purge [post]
func (h *Handler) PurgeUnlinked(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req PurgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Paths) == 0 && !req.All {
		writeJSON(w, http.StatusBadRequest, errorBody("paths or all is required"))
		return
	}
	res, err := h.svc.PurgeUnlinked(context.WithoutCancel(r.Context()), req.Paths)
	if err != nil {
		writeServiceError(w, "purge unlinked", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RunOCR handles POST /api/ocr/run. The batch runs in the background; poll
// /api/ocr/status or listen for ocr.batch on /api/events.
//
//	@Summary		Start an OCR batch over the watch folder
//	@Tags			ocr
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OCRRunRequest	false	"Batch options"
//	@Success		202		{object}	map[string]bool
//	@Failure		409		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ocr/run [post]
func (h *Handler) RunOCR(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req OCRRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.StartOCR(context.WithoutCancel(r.Context()), req.Reprocess); err != nil {
		writeServiceError(w, "start ocr", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

// ProcessOCRFile handles POST /api/ocr/file.
//
//	@Summary		Transcribe one file
//	@Tags			ocr
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OCRFileRequest	true	"File to transcribe"
//	@Success		200		{object}	ocr.FileResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ocr/file [post]
func (h *Handler) ProcessOCRFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req OCRFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.ProcessOCRFile(r.Context(), req.Path)
	if err != nil {
		writeServiceError(w, "ocr file", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StopOCR handles POST /api/ocr/stop.
//
//	@Summary		Cancel the running OCR batch
//	@Tags			ocr
//	@Produce		json
//	@Success		200	{object}	map[string]bool
//	@Security		BearerAuth
//	@Router			/ocr/stop [post]
func (h *Handler) StopOCR(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": h.svc.StopOCR()})
}

// OCRStatus handles GET /api/ocr/status.
//
//	@Summary		Get the OCR pipeline state
//	@Tags			ocr
//	@Produce		json
//	@Success		200	{object}	ocr.Status
//	@Security		BearerAuth
//	@Router			/ocr/status [get]
func (h *Handler) OCRStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.OCRStatus())
}

// History handles GET /api/history.
//
//	@Summary		List journaled moves and deletions
//	@Tags			history
//	@Produce		json
//	@Param			run_id	query		string	false	"Only this run"
//	@Param			limit	query		int		false	"Max operations"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	ops, err := h.svc.History(r.Context(), q.Get("run_id"), limit)
	if err != nil {
		writeServiceError(w, "history", err)
		return
	}
	if ops == nil {
		ops = []journal.Operation{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Operations: ops})
}
