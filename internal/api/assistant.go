package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/starford/pantry/internal/assistant"
	"github.com/starford/pantry/internal/models"
)

const maxImageBytes = 10 << 20

// Chat handles POST /assistant/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if h.assistant == nil {
		h.writeError(w, "chat", assistant.ErrNotConfigured)
		return
	}
	reply, err := h.assistant.Chat(r.Context(), req.Prompt, h.store.Ingredients())
	if err != nil {
		h.upstreamError(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// Recognize handles POST /ingredients/recognize (multipart/form-data, field
// "image"). Recognised items are merged into stock.
//
//	@Summary	Add ingredients recognised in a photo
//	@Tags		ingredients
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		image	formData	file	true	"Photo"
//	@Success	200		{array}		models.Ingredient
//	@Failure	400		{object}	errResponse
//	@Failure	502		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/ingredients/recognize [post]
func (h *Handler) Recognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'image' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read image"))
		return
	}
	if h.assistant == nil {
		h.writeError(w, "recognize", assistant.ErrNotConfigured)
		return
	}
	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}

	items, err := h.assistant.Recognize(r.Context(), data, mediaType)
	if err != nil {
		h.upstreamError(w, "recognize", err)
		return
	}
	added, err := h.store.AddRecognized(items)
	if err != nil {
		h.writeError(w, "recognize", err)
		return
	}
	if added == nil {
		added = []models.Ingredient{}
	}
	writeJSON(w, http.StatusOK, added)
}

// upstreamError reports a failed model call as 502. Nothing is retried.
func (h *Handler) upstreamError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, assistant.ErrNotConfigured) {
		h.writeError(w, op, err)
		return
	}
	h.logger.Warn("assistant: "+op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
}
