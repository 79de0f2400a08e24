package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/matcenter/internal/flashcard"
	"github.com/BradenHooton/matcenter/internal/services"
	pkghttp "github.com/BradenHooton/matcenter/pkg/http"
)

// FlashcardServiceInterface runs knowledge-check sessions
type FlashcardServiceInterface interface {
	Topics() []flashcard.TopicInfo
	Start(ctx context.Context, topicIDs []string) (*services.FlashcardSessionView, error)
	Current(id string) (*services.FlashcardSessionView, error)
	Reveal(id string) (*services.FlashcardSessionView, error)
	Remember(id string) (*services.FlashcardSessionView, error)
	Forget(id string) (*services.FlashcardSessionView, error)
	Finish(ctx context.Context, id string) (*flashcard.Summary, error)
}

// FlashcardHandler serves the knowledge check
type FlashcardHandler struct {
	service FlashcardServiceInterface
}

// NewFlashcardHandler creates a new FlashcardHandler
func NewFlashcardHandler(service FlashcardServiceInterface) *FlashcardHandler {
	return &FlashcardHandler{service: service}
}

// StartRequest selects the topics of a new knowledge check
type StartRequest struct {
	Topics []string `json:"topics" validate:"required,min=1,max=100,dive,required,max=100"`
}

// Topics lists the deck topics
// @Summary List knowledge-check topics
// @Produce json
// @Success 200 {array} flashcard.TopicInfo
// @Router /flashcards/topics [get]
func (h *FlashcardHandler) Topics(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Topics())
}

// Start opens a knowledge check over the selected topics
// @Summary Start a knowledge check
// @Accept json
// @Param request body StartRequest true "Selected topics"
// @Success 201 {object} services.FlashcardSessionView
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /flashcards/sessions [post]
func (h *FlashcardHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	view, err := h.service.Start(r.Context(), req.Topics)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, view)
}

// Current returns the card being shown
// @Router /flashcards/sessions/{id} [get]
func (h *FlashcardHandler) Current(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.Current)
}

// Reveal shows the definition of the current card
// @Router /flashcards/sessions/{id}/reveal [post]
func (h *FlashcardHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.Reveal)
}

// Remember marks the current card remembered
// @Router /flashcards/sessions/{id}/remember [post]
func (h *FlashcardHandler) Remember(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.Remember)
}

// Forget marks the current card forgotten
// @Router /flashcards/sessions/{id}/forget [post]
func (h *FlashcardHandler) Forget(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.Forget)
}

// Finish closes the knowledge check and returns the final summary
// @Summary Finish a knowledge check
// @Success 200 {object} flashcard.Summary
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /flashcards/sessions/{id} [delete]
func (h *FlashcardHandler) Finish(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Finish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, summary)
}

func (h *FlashcardHandler) step(w http.ResponseWriter, r *http.Request, op func(string) (*services.FlashcardSessionView, error)) {
	view, err := op(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, view)
}
