// Package handlers exposes the puzzle exchange over HTTP.
//
// Handlers are transport-thin: they bind and shape input, call the
// application services through the narrow interfaces below and translate
// results (including typed service errors) into HTTP responses.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sfreeley/puzzle-post/internal/domain"
	"github.com/sfreeley/puzzle-post/internal/http/middleware"
	"github.com/sfreeley/puzzle-post/internal/services"
	"github.com/sfreeley/puzzle-post/internal/utils"
)

//
// Service contracts (context-aware)
//

// UserService covers registration, lookup and the inbox watermark.
type UserService interface {
	CreateUser(ctx context.Context, in services.NewUser) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	LegacyUnreadCount(ctx context.Context, userID string) (int64, error)
	TouchInbox(ctx context.Context, userID string) error
}

// PuzzleService is the puzzle catalog.
type PuzzleService interface {
	CreatePuzzle(ctx context.Context, ownerID string, in services.NewPuzzle) (*domain.Puzzle, error)
	GetPuzzle(ctx context.Context, id string) (*domain.Puzzle, error)
	ListOwned(ctx context.Context, ownerID string) ([]domain.Puzzle, error)
	// OwnedVersion returns (count, latest update) for ETag generation.
	OwnedVersion(ctx context.Context, ownerID string) (int64, *time.Time, error)
	Browse(ctx context.Context, viewerID string, f services.Filter) ([]domain.Puzzle, int64, error)
	DeletePuzzle(ctx context.Context, puzzleID, ownerID string) (*domain.Puzzle, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// NegotiationService runs request, approve, decline and complete, and is the
// entry point for user-authored messages.
type NegotiationService interface {
	RequestPuzzle(ctx context.Context, puzzleID, requesterID, note string) (*domain.Puzzle, *domain.Message, error)
	ApproveRequest(ctx context.Context, puzzleID, approverID, note string) (*domain.Puzzle, *domain.Message, error)
	DeclineRequest(ctx context.Context, puzzleID, approverID, note string) (*domain.Puzzle, *domain.Message, error)
	CompletePuzzle(ctx context.Context, puzzleID, holderID string) (*domain.Puzzle, error)
	SendMessage(ctx context.Context, senderID, recipientID, puzzleID, content string) (*domain.Message, error)
}

// MessageService covers reads, read state, deletion and idempotent replay.
type MessageService interface {
	MarkRead(ctx context.Context, messageID, readerID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	ThreadPage(ctx context.Context, viewerID, otherID, puzzleID string, page, pageSize int) ([]domain.Message, int64, error)
	// ThreadVersion returns (count, latest update) for ETag generation.
	ThreadVersion(ctx context.Context, viewerID, otherID, puzzleID string) (int64, *time.Time, error)
	Delete(ctx context.Context, messageID, requesterID string) error
	DeleteThread(ctx context.Context, viewerID, otherID, puzzleID string) (int64, error)
	ListThreads(ctx context.Context, userID string) ([]services.ThreadSummary, error)
	Replay(ctx context.Context, userID, puzzleID, key string) (*domain.Message, bool)
	Remember(ctx context.Context, userID, puzzleID, key, messageID string, status int) error
}

//
// Handler wiring
//

// Handlers groups every HTTP endpoint of the exchange.
type Handlers struct {
	users   UserService
	puzzles PuzzleService
	nego    NegotiationService
	msgs    MessageService
}

// New constructs Handlers bound to the given services.
func New(users UserService, puzzles PuzzleService, nego NegotiationService, msgs MessageService) *Handlers {
	return &Handlers{users: users, puzzles: puzzles, nego: nego, msgs: msgs}
}

// userID is the caller identity established by middleware.Identity.
func userID(c *gin.Context) string {
	return middleware.UserID(c)
}

//
// Shared DTOs and helpers
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	pages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

// clampPagination reads page/page_size from the query string.
func clampPagination(c *gin.Context, defSize int) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"), defSize, 100)
}

// weakETag builds W/"<kind>:<scope>:<count>:<unix>" from a (count, latest
// update) pair.
func weakETag(kind, scope string, count int64, latest *time.Time) string {
	var ts int64
	if latest != nil {
		ts = latest.UnixNano()
	}
	return fmt.Sprintf(`W/"%s:%s:%d:%d"`, kind, scope, count, ts)
}

// notModified sets the ETag header and reports whether If-None-Match matched,
// in which case a 304 has already been written.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
