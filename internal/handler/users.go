package handler

import (
	"errors"
	"net/http"

	"chatly-server/internal/userstore"
	"github.com/gin-gonic/gin"
)

type UsersHandler struct {
	Users *userstore.Store
}

func (h *UsersHandler) ListUsers(c *gin.Context) {
	userID, ok := requireOwnUserID(c)
	if !ok {
		return
	}

	users, err := h.Users.ListOtherUsers(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not list users"})
		return
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{
			"id":          u.ID,
			"firstName":   u.FirstName,
			"lastName":    u.LastName,
			"email":       u.Email,
			"isFollowing": u.IsFollowing,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *UsersHandler) ListFollowing(c *gin.Context) {
	userID, ok := requireOwnUserID(c)
	if !ok {
		return
	}

	users, err := h.Users.ListFollowing(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not list following"})
		return
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, userPayload(u))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

type followBody struct {
	TargetUserID string `json:"targetUserId"`
}

func (h *UsersHandler) Follow(c *gin.Context) {
	userID, ok := requireOwnUserID(c)
	if !ok {
		return
	}

	var body followBody
	if err := c.ShouldBindJSON(&body); err != nil || body.TargetUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	if err := h.Users.Follow(userID, body.TargetUserID); err != nil {
		switch {
		case errors.Is(err, userstore.ErrSelfFollow):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Cannot follow yourself"})
		case errors.Is(err, userstore.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not follow user"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"following": true}})
}

func (h *UsersHandler) Unfollow(c *gin.Context) {
	userID, ok := requireOwnUserID(c)
	if !ok {
		return
	}

	var body followBody
	if err := c.ShouldBindJSON(&body); err != nil || body.TargetUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	if err := h.Users.Unfollow(userID, body.TargetUserID); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not unfollow user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"following": false}})
}
