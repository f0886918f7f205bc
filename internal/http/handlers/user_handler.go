// User HTTP handlers.
//
//   - POST /users        (register; no identity required)
//   - GET  /users/{id}   (profile)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sfreeley/puzzle-post/internal/services"
)

// CreateUserRequest is the JSON payload for registering a user.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required" example:"agatha"`
	Email    string `json:"email"    binding:"required" example:"agatha@example.com"`
	AboutMe  string `json:"about_me" example:"Landscapes, 1000 pieces and up."`
}

// CreateUser godoc
// @ID          createUser
// @Summary     Register a user
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CreateUserRequest  true  "User"
// @Success     201   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     409   {object}  handlers.ErrorResponse  "Username or email taken"
// @Router      /users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and email required")
		return
	}
	u, err := h.users.CreateUser(c.Request.Context(), services.NewUser{
		Username: req.Username,
		Email:    req.Email,
		AboutMe:  req.AboutMe,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a user
// @Tags        Users
// @Produce     json
// @Param       X-User-ID  header    string  true  "Caller"
// @Param       id         path      string  true  "User ID"
// @Success     200        {object}  domain.User
// @Failure     404        {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
