package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/beyondguo/webnote/internal/apperr"
	"github.com/beyondguo/webnote/internal/chat"
	"github.com/beyondguo/webnote/internal/extract"
	"github.com/beyondguo/webnote/internal/models"
	"github.com/beyondguo/webnote/internal/notestore"
)

// Handler holds API route handlers.
type Handler struct {
	svc       *notestore.Service
	chatSvc   *chat.Service     // nil when chat is disabled
	extractor *extract.Extractor // nil when capture is disabled
}

// NewHandler creates a new Handler.
func NewHandler(svc *notestore.Service, chatSvc *chat.Service, extractor *extract.Extractor) *Handler {
	return &Handler{svc: svc, chatSvc: chatSvc, extractor: extractor}
}

func urlParam(r *http.Request) string {
	return r.URL.Query().Get("url")
}

// SaveNote handles POST /notes: the dual-write save. The response always
// carries the per-tier outcome so the client can distinguish "saved to cache
// only" from a fully durable save.
func (h *Handler) SaveNote(w http.ResponseWriter, r *http.Request) {
	var req SaveNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	res, err := h.svc.SaveNote(r.Context(),
		models.PageInfo{URL: req.URL, Title: req.Title},
		models.Note{ID: req.Note.ID, Text: req.Note.Text, Tags: req.Note.Tags, Note: req.Note.Note},
	)
	if err != nil {
		slog.Error("save note failed", slog.String("url", req.URL), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetNotes handles GET /notes?url=.
func (h *Handler) GetNotes(w http.ResponseWriter, r *http.Request) {
	url := urlParam(r)
	if url == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'url' is required"))
		return
	}
	rec, err := h.svc.LoadNotes(r.Context(), url)
	if err != nil {
		slog.Error("load notes failed", slog.String("url", url), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no notes for url"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListAllNotes handles GET /notes/all?interactive=.
func (h *Handler) ListAllNotes(w http.ResponseWriter, r *http.Request) {
	interactive, _ := strconv.ParseBool(r.URL.Query().Get("interactive"))
	pages, err := h.svc.LoadAllNotes(r.Context(), interactive)
	if err != nil {
		slog.Error("load all notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: pages, Total: len(pages)})
}

// UpdateNote handles PATCH /notes/{id}?url=.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	url := urlParam(r)
	noteID := chi.URLParam(r, "id")
	if url == "" || noteID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("url and note id are required"))
		return
	}
	var req UpdateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.svc.UpdateNote(r.Context(), url, noteID, req.Update())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrPermissionUnavailable):
		writeJSON(w, http.StatusConflict, errorBody("folder access required"))
	default:
		slog.Error("update note failed", slog.String("url", url), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// DeleteNote handles DELETE /notes/{id}?url=.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	url := urlParam(r)
	noteID := chi.URLParam(r, "id")
	if url == "" || noteID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("url and note id are required"))
		return
	}
	if err := h.svc.DeleteNote(r.Context(), url, noteID); err != nil {
		slog.Error("delete note failed", slog.String("url", url), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePageTitle handles PUT /pages/title.
func (h *Handler) UpdatePageTitle(w http.ResponseWriter, r *http.Request) {
	var req UpdatePageTitleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.UpdatePageTitle(r.Context(), req.URL, req.Title); err != nil {
		slog.Error("update title failed", slog.String("url", req.URL), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetAllTags handles GET /tags.
func (h *Handler) GetAllTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.GetAllTags(r.Context())
	if err != nil {
		slog.Error("get tags failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// Export handles GET /export?url= (single page; omit url for everything).
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var doc string
	if url := urlParam(r); url != "" {
		rec, err := h.svc.LoadNotes(r.Context(), url)
		if err != nil {
			slog.Error("export failed", slog.String("url", url), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
		if rec == nil {
			writeJSON(w, http.StatusNotFound, errorBody("no notes for url"))
			return
		}
		doc = notestore.ExportPage(rec)
	} else {
		pages, err := h.svc.LoadAllNotes(r.Context(), false)
		if err != nil {
			slog.Error("export failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
		doc = notestore.ExportAll(pages)
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// FolderStatus handles GET /folder.
func (h *Handler) FolderStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		slog.Error("folder status failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// RequestFolderAccess handles POST /folder/access.
func (h *Handler) RequestFolderAccess(w http.ResponseWriter, r *http.Request) {
	var req FolderAccessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	res, err := h.svc.RequestFolderAccess(r.Context(), req.Path, req.Migrate)
	if err != nil {
		slog.Error("folder access failed", slog.String("path", req.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RevokeFolderAccess handles POST /folder/revoke.
func (h *Handler) RevokeFolderAccess(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RevokeFolderAccess(r.Context()); err != nil {
		slog.Error("folder revoke failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SavePageMarkdown handles POST /markdown.
func (h *Handler) SavePageMarkdown(w http.ResponseWriter, r *http.Request) {
	var req SaveMarkdownRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	err := h.svc.SavePageMarkdown(r.Context(), req.URL, req.Markdown)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
	case errors.Is(err, apperr.ErrPermissionUnavailable):
		writeJSON(w, http.StatusConflict, errorBody("folder access required"))
	default:
		slog.Error("save markdown failed", slog.String("url", req.URL), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// GetPageMarkdown handles GET /markdown?url=.
func (h *Handler) GetPageMarkdown(w http.ResponseWriter, r *http.Request) {
	url := urlParam(r)
	if url == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'url' is required"))
		return
	}
	md, err := h.svc.LoadPageMarkdown(r.Context(), url)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, MarkdownResponse{URL: url, Markdown: md})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("no snapshot for url"))
	case errors.Is(err, apperr.ErrPermissionUnavailable):
		writeJSON(w, http.StatusConflict, errorBody("folder access required"))
	default:
		slog.Error("load markdown failed", slog.String("url", url), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// CapturePage handles POST /pages/capture: fetch, extract, and store the
// page snapshot server-side.
func (h *Handler) CapturePage(w http.ResponseWriter, r *http.Request) {
	if h.extractor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("capture disabled"))
		return
	}
	var req CaptureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	markdown, meta, err := h.extractor.Capture(r.Context(), req.URL)
	if err != nil {
		slog.Error("capture failed", slog.String("url", req.URL), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
		return
	}
	if err := h.svc.SavePageMarkdown(r.Context(), req.URL, markdown); err != nil {
		if errors.Is(err, apperr.ErrPermissionUnavailable) {
			writeJSON(w, http.StatusConflict, errorBody("folder access required"))
			return
		}
		slog.Error("capture save failed", slog.String("url", req.URL), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

// Chat handles POST /chat: answer a question about a captured page.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.chatSvc == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("chat disabled"))
		return
	}
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	markdown, err := h.svc.LoadPageMarkdown(r.Context(), req.URL)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("no snapshot for url; capture the page first"))
		return
	case errors.Is(err, apperr.ErrPermissionUnavailable):
		writeJSON(w, http.StatusConflict, errorBody("folder access required"))
		return
	case err != nil:
		slog.Error("chat snapshot load failed", slog.String("url", req.URL), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	answer, err := h.chatSvc.AskAboutPage(r.Context(), markdown, req.Question)
	if err != nil {
		slog.Error("chat failed", slog.String("url", req.URL), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("chat backend error"))
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Answer: answer})
}
