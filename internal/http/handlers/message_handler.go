// Message HTTP handlers.
//
// This file exposes REST endpoints for negotiation messages:
//   - POST   /puzzles/{id}/messages           (send; Idempotency-Key supported)
//   - GET    /puzzles/{id}/messages/{userId}  (thread with one user, ETag support)
//   - DELETE /puzzles/{id}/messages/{userId}  (hide the thread from the caller's side)
//   - GET    /messages/threads                (inbox summary; moves the inbox watermark)
//   - GET    /messages/unread                 (unread counts)
//   - POST   /messages/{id}/read              (mark read)
//   - DELETE /messages/{id}                   (hide one message from the caller's side)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous send exists
// for (user, puzzle, key), the handler returns that recorded message and sets
// `Idempotency-Replayed: true`.
package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sfreeley/puzzle-post/internal/domain"
	"github.com/sfreeley/puzzle-post/internal/http/middleware"
	"github.com/sfreeley/puzzle-post/internal/services"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a message.
type SendMessageRequest struct {
	RecipientID string `json:"recipient_id" binding:"required" example:"3f1c7f0e-8c1b-4d8e-9d5a-1c2b3a4d5e6f"`
	// Content must be non-empty after trimming.
	Content string `json:"content" binding:"required" example:"Is the box in good shape?"`
}

// ThreadResponse contains a page of a thread and pagination metadata.
type ThreadResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// UnreadResponse carries both unread counters.
type UnreadResponse struct {
	// Unread counts visible, unread messages addressed to the caller.
	Unread int64 `json:"unread"`
	// SinceLastVisit counts messages received since the inbox was last opened.
	SinceLastVisit int64 `json:"since_last_visit"`
}

// MarkReadResponse is the caller's unread count after marking a message read.
type MarkReadResponse struct {
	Unread int64 `json:"unread"`
}

// DeleteThreadResponse reports how many messages were hidden.
type DeleteThreadResponse struct {
	Hidden int64 `json:"hidden"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes line endings, collapses long blank runs and
// trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message about a puzzle
// @Description One party must own the puzzle. Messaging the owner of an available puzzle also requests it.
// @Description Supports idempotency via the Idempotency-Key header (same key → same message).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true   "Sender"
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries (UUID recommended)"
// @Param       id               path    string  true   "Puzzle ID"
// @Param       body             body    handlers.SendMessageRequest  true  "Message"
//
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or too long"
// @Failure     403  {object}  handlers.ErrorResponse  "Neither party owns the puzzle"
// @Failure     404  {object}  handlers.ErrorResponse  "Puzzle or user not found"
// @Router      /puzzles/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	puzzleID := c.Param("id")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "recipient_id and content required")
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	sender := userID(c)
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if prev, found := h.msgs.Replay(ctx, sender, puzzleID, idemKey); found {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusCreated, prev)
			return
		}
	}

	m, err := h.nego.SendMessage(ctx, sender, strings.TrimSpace(req.RecipientID), puzzleID, content)
	if err != nil {
		failErr(c, err)
		return
	}

	// Best effort: a failed record only costs a future replay.
	if idemKey != "" {
		if err := h.msgs.Remember(ctx, sender, puzzleID, idemKey, m.ID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
		}
	}

	ok(c, http.StatusCreated, m)
}

// GetThread godoc
// @ID          getThread
// @Summary     Thread with one user about a puzzle
// @Description Oldest first. Messages the caller deleted are omitted. Supports If-None-Match.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID      header  string  true   "Viewer"
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
// @Param       id             path    string  true   "Puzzle ID"
// @Param       userId         path    string  true   "Other party"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(50)
//
// @Success     200  {object}  handlers.ThreadResponse
// @Success     304  "Not modified"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /puzzles/{id}/messages/{userId} [get]
func (h *Handlers) GetThread(c *gin.Context) {
	ctx := c.Request.Context()
	viewer, other, puzzleID := userID(c), c.Param("userId"), c.Param("id")

	// ETag pre-check (best effort).
	if n, latest, err := h.msgs.ThreadVersion(ctx, viewer, other, puzzleID); err == nil {
		if notModified(c, weakETag("thread", puzzleID+":"+other, n, latest)) {
			return
		}
	}

	page, pageSize := clampPagination(c, 50)
	items, total, err := h.msgs.ThreadPage(ctx, viewer, other, puzzleID, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ThreadResponse{Messages: items, Pagination: newPagination(page, pageSize, total)})
}

// DeleteThread godoc
// @ID          deleteThread
// @Summary     Hide a thread from the caller's side
// @Description The other party still sees every message.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header    string  true  "Viewer"
// @Param       id         path      string  true  "Puzzle ID"
// @Param       userId     path      string  true  "Other party"
// @Success     200        {object}  handlers.DeleteThreadResponse
// @Router      /puzzles/{id}/messages/{userId} [delete]
func (h *Handlers) DeleteThread(c *gin.Context) {
	n, err := h.msgs.DeleteThread(c.Request.Context(), userID(c), c.Param("userId"), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, DeleteThreadResponse{Hidden: n})
}

// ListThreads godoc
// @ID          listThreads
// @Summary     Inbox: one entry per counterpart
// @Description Newest activity first, with per-counterpart unread counts. Opening the inbox resets since_last_visit.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true  "Viewer"
// @Success     200  {array}  services.ThreadSummary
// @Router      /messages/threads [get]
func (h *Handlers) ListThreads(c *gin.Context) {
	ctx := c.Request.Context()
	viewer := userID(c)

	threads, err := h.msgs.ListThreads(ctx, viewer)
	if err != nil {
		failErr(c, err)
		return
	}
	if err := h.users.TouchInbox(ctx, viewer); err != nil {
		failErr(c, err)
		return
	}
	if threads == nil {
		threads = []services.ThreadSummary{}
	}
	ok(c, http.StatusOK, threads)
}

// UnreadCount godoc
// @ID          unreadCount
// @Summary     Unread message counters
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true  "Viewer"
// @Success     200  {object}  handlers.UnreadResponse
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /messages/unread [get]
func (h *Handlers) UnreadCount(c *gin.Context) {
	ctx := c.Request.Context()
	viewer := userID(c)

	since, err := h.users.LegacyUnreadCount(ctx, viewer)
	if err != nil {
		failErr(c, err)
		return
	}
	unread, err := h.msgs.UnreadCount(ctx, viewer)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UnreadResponse{Unread: unread, SinceLastVisit: since})
}

// MarkRead godoc
// @ID          markRead
// @Summary     Mark a message read
// @Description Idempotent. Only the recipient may mark a message read.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header    string  true  "Recipient"
// @Param       id         path      string  true  "Message ID"
// @Success     200        {object}  handlers.MarkReadResponse
// @Failure     403        {object}  handlers.ErrorResponse  "Not the recipient"
// @Failure     404        {object}  handlers.ErrorResponse
// @Router      /messages/{id}/read [post]
func (h *Handlers) MarkRead(c *gin.Context) {
	n, err := h.msgs.MarkRead(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Unread: n})
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Hide a message from the caller's side
// @Tags        Messages
// @Param       X-User-ID  header  string  true  "Sender or recipient"
// @Param       id         path    string  true  "Message ID"
// @Success     204  "Deleted"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /messages/{id} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	if err := h.msgs.Delete(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
