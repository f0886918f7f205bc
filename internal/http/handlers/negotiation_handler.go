// Negotiation HTTP handlers.
//
//   - POST /puzzles/{id}/request   (requester asks for the puzzle)
//   - POST /puzzles/{id}/approve   (owner hands it over)
//   - POST /puzzles/{id}/decline   (owner turns the request down)
//   - POST /puzzles/{id}/complete  (holder is done with it)
//
// Request, approve and decline each produce a message in the same
// transaction as the state change; the response carries both.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sfreeley/puzzle-post/internal/domain"
)

// NoteRequest is the optional body of request, approve and decline.
type NoteRequest struct {
	Note string `json:"note" example:"Happy to pick it up on Saturday."`
}

// TransitionResponse is the puzzle after a transition plus the message that
// accompanied it (absent for complete).
type TransitionResponse struct {
	Puzzle  *domain.Puzzle  `json:"puzzle"`
	Message *domain.Message `json:"message,omitempty"`
}

// bindNote reads an optional NoteRequest. An empty body is a blank note.
func bindNote(c *gin.Context) (string, bool) {
	var req NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed note")
		return "", false
	}
	return req.Note, true
}

// RequestPuzzle godoc
// @ID          requestPuzzle
// @Summary     Request a puzzle
// @Description Moves an available puzzle to requested and sends the note (or a default greeting) to the owner.
// @Tags        Negotiation
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header    string                  true   "Requester"
// @Param       id         path      string                  true   "Puzzle ID"
// @Param       body       body      handlers.NoteRequest    false  "Note to the owner"
// @Success     200        {object}  handlers.TransitionResponse
// @Failure     404        {object}  handlers.ErrorResponse  "Puzzle not found"
// @Failure     409        {object}  handlers.ErrorResponse  "Not available, or own puzzle"
// @Router      /puzzles/{id}/request [post]
func (h *Handlers) RequestPuzzle(c *gin.Context) {
	note, okNote := bindNote(c)
	if !okNote {
		return
	}
	p, m, err := h.nego.RequestPuzzle(c.Request.Context(), c.Param("id"), userID(c), note)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, TransitionResponse{Puzzle: p, Message: m})
}

// ApproveRequest godoc
// @ID          approveRequest
// @Summary     Approve the pending request
// @Description Transfers the puzzle to the requester and notifies them.
// @Tags        Negotiation
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header    string                  true   "Owner"
// @Param       id         path      string                  true   "Puzzle ID"
// @Param       body       body      handlers.NoteRequest    false  "Note appended to the notice"
// @Success     200        {object}  handlers.TransitionResponse
// @Failure     403        {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     409        {object}  handlers.ErrorResponse  "No pending request"
// @Router      /puzzles/{id}/approve [post]
func (h *Handlers) ApproveRequest(c *gin.Context) {
	note, okNote := bindNote(c)
	if !okNote {
		return
	}
	p, m, err := h.nego.ApproveRequest(c.Request.Context(), c.Param("id"), userID(c), note)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, TransitionResponse{Puzzle: p, Message: m})
}

// DeclineRequest godoc
// @ID          declineRequest
// @Summary     Decline the pending request
// @Tags        Negotiation
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header    string                  true   "Owner"
// @Param       id         path      string                  true   "Puzzle ID"
// @Param       body       body      handlers.NoteRequest    false  "Note appended to the notice"
// @Success     200        {object}  handlers.TransitionResponse
// @Failure     403        {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     409        {object}  handlers.ErrorResponse  "No pending request"
// @Router      /puzzles/{id}/decline [post]
func (h *Handlers) DeclineRequest(c *gin.Context) {
	note, okNote := bindNote(c)
	if !okNote {
		return
	}
	p, m, err := h.nego.DeclineRequest(c.Request.Context(), c.Param("id"), userID(c), note)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, TransitionResponse{Puzzle: p, Message: m})
}

// CompletePuzzle godoc
// @ID          completePuzzle
// @Summary     Mark a borrowed puzzle complete
// @Description Returns an in-progress puzzle to available. Only the current holder may do this.
// @Tags        Negotiation
// @Produce     json
// @Param       X-User-ID  header    string  true  "Holder"
// @Param       id         path      string  true  "Puzzle ID"
// @Success     200        {object}  handlers.TransitionResponse
// @Failure     403        {object}  handlers.ErrorResponse  "Not the holder"
// @Failure     409        {object}  handlers.ErrorResponse  "Not in progress"
// @Router      /puzzles/{id}/complete [post]
func (h *Handlers) CompletePuzzle(c *gin.Context) {
	p, err := h.nego.CompletePuzzle(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, TransitionResponse{Puzzle: p})
}
