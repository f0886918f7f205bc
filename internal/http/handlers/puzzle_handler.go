// Puzzle HTTP handlers.
//
//   - POST   /puzzles         (create; image as base64)
//   - GET    /puzzles         (browse others' available puzzles)
//   - GET    /puzzles/mine    (caller's active listing, ETag support)
//   - GET    /puzzles/{id}
//   - DELETE /puzzles/{id}    (soft delete)
//   - GET    /categories
package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sfreeley/puzzle-post/internal/domain"
	"github.com/sfreeley/puzzle-post/internal/services"
	"github.com/sfreeley/puzzle-post/internal/utils"
)

// CreatePuzzleRequest is the JSON payload for listing a puzzle.
type CreatePuzzleRequest struct {
	Title        string   `json:"title"        binding:"required" example:"Cocoa Beach"`
	Pieces       int      `json:"pieces"       binding:"required" example:"1000"`
	Manufacturer string   `json:"manufacturer" binding:"required" example:"Ravensburger"`
	Description  string   `json:"description"  example:"All pieces present."`
	Categories   []string `json:"categories"   example:"landscape,beach"`
	// ImageBase64 is the standard base64 encoding of a JPEG, PNG, GIF or WebP.
	ImageBase64 string `json:"image_base64,omitempty"`
}

// ListPuzzlesResponse is a page of browsable puzzles.
type ListPuzzlesResponse struct {
	Puzzles    []domain.Puzzle `json:"puzzles"`
	Pagination Pagination      `json:"pagination"`
}

// CreatePuzzle godoc
// @ID          createPuzzle
// @Summary     List a puzzle for exchange
// @Tags        Puzzles
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header    string                         true  "Caller (becomes the owner)"
// @Param       body       body      handlers.CreatePuzzleRequest  true  "Puzzle"
// @Success     201        {object}  domain.Puzzle
// @Failure     400        {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     404        {object}  handlers.ErrorResponse  "Owner not found"
// @Router      /puzzles [post]
func (h *Handlers) CreatePuzzle(c *gin.Context) {
	var req CreatePuzzleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title, pieces and manufacturer required")
		return
	}
	var image []byte
	if s := strings.TrimSpace(req.ImageBase64); s != "" {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image_base64 is not valid base64")
			return
		}
		image = b
	}

	p, err := h.puzzles.CreatePuzzle(c.Request.Context(), userID(c), services.NewPuzzle{
		Title:        req.Title,
		Pieces:       req.Pieces,
		Manufacturer: req.Manufacturer,
		Description:  req.Description,
		Categories:   req.Categories,
		Image:        image,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("Location", "/puzzles/"+p.ID)
	ok(c, http.StatusCreated, p)
}

// BrowsePuzzles godoc
// @ID          browsePuzzles
// @Summary     Browse available puzzles
// @Description Available puzzles owned by other users. A free-text query ranks results by similarity.
// @Tags        Puzzles
// @Produce     json
// @Param       X-User-ID   header  string  true   "Caller"
// @Param       query       query   string  false  "Free text"
// @Param       category    query   string  false  "Category name"
// @Param       min_pieces  query   int     false  "Minimum pieces"
// @Param       max_pieces  query   int     false  "Maximum pieces"
// @Param       page        query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size   query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListPuzzlesResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /puzzles [get]
func (h *Handlers) BrowsePuzzles(c *gin.Context) {
	page, pageSize := clampPagination(c, 20)
	items, total, err := h.puzzles.Browse(c.Request.Context(), userID(c), services.Filter{
		Query:     c.Query("query"),
		Category:  c.Query("category"),
		MinPieces: utils.AtoiDefault(c.Query("min_pieces"), 0),
		MaxPieces: utils.AtoiDefault(c.Query("max_pieces"), 0),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListPuzzlesResponse{Puzzles: items, Pagination: newPagination(page, pageSize, total)})
}

// ListMyPuzzles godoc
// @ID          listMyPuzzles
// @Summary     The caller's active puzzles
// @Description Non-deleted puzzles owned by the caller, newest first. Supports If-None-Match.
// @Tags        Puzzles
// @Produce     json
// @Param       X-User-ID      header  string  true   "Caller"
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
// @Success     200  {array}   domain.Puzzle
// @Success     304  "Not modified"
// @Router      /puzzles/mine [get]
func (h *Handlers) ListMyPuzzles(c *gin.Context) {
	ctx := c.Request.Context()
	owner := userID(c)

	// ETag pre-check (best effort).
	if n, latest, err := h.puzzles.OwnedVersion(ctx, owner); err == nil {
		if notModified(c, weakETag("puzzles", owner, n, latest)) {
			return
		}
	}

	items, err := h.puzzles.ListOwned(ctx, owner)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// GetPuzzle godoc
// @ID          getPuzzle
// @Summary     Get a puzzle
// @Tags        Puzzles
// @Produce     json
// @Param       X-User-ID  header    string  true  "Caller"
// @Param       id         path      string  true  "Puzzle ID"
// @Success     200        {object}  domain.Puzzle
// @Failure     404        {object}  handlers.ErrorResponse
// @Router      /puzzles/{id} [get]
func (h *Handlers) GetPuzzle(c *gin.Context) {
	p, err := h.puzzles.GetPuzzle(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeletePuzzle godoc
// @ID          deletePuzzle
// @Summary     Soft-delete a puzzle
// @Tags        Puzzles
// @Param       X-User-ID  header  string  true  "Caller (must own the puzzle)"
// @Param       id         path    string  true  "Puzzle ID"
// @Success     204  "Deleted"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Already deleted"
// @Router      /puzzles/{id} [delete]
func (h *Handlers) DeletePuzzle(c *gin.Context) {
	if _, err := h.puzzles.DeletePuzzle(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListCategories godoc
// @ID          listCategories
// @Summary     All categories
// @Tags        Puzzles
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller"
// @Success     200  {array}  domain.Category
// @Router      /categories [get]
func (h *Handlers) ListCategories(c *gin.Context) {
	cats, err := h.puzzles.ListCategories(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cats)
}
