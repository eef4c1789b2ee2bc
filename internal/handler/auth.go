package handler

import (
	"errors"
	"net/http"
	"strings"

	"chatly-server/internal/auth"
	"chatly-server/internal/middleware"
	"chatly-server/internal/model"
	"chatly-server/internal/userstore"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	Users       *userstore.Store
	TokenConfig auth.TokenConfig
}

type signupBody struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func userPayload(u model.User) gin.H {
	return gin.H{
		"id":        u.ID,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"email":     u.Email,
	}
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var body signupBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}
	body.FirstName = strings.TrimSpace(body.FirstName)
	body.LastName = strings.TrimSpace(body.LastName)
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if body.FirstName == "" || body.LastName == "" || body.Email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "All fields are required"})
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not create user"})
		return
	}

	user, err := h.Users.CreateUser(body.FirstName, body.LastName, body.Email, hash)
	if err != nil {
		if errors.Is(err, userstore.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"message": "Email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": userPayload(user)})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if body.Email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email and password are required"})
		return
	}

	user, err := h.Users.GetUserByEmail(body.Email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
		return
	}
	if !auth.CheckPassword(user.PasswordHash, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
		return
	}

	token, err := auth.CreateToken(user.ID, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not log in"})
		return
	}
	// One active session per account: issuing a token retires earlier ones.
	if err := h.Users.SetCurrentToken(user.ID, token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not log in"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"token": token,
		"user":  userPayload(user),
	}})
}

func (h *AuthHandler) Validate(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authentication token"})
		return
	}

	user, err := h.Users.GetUserByID(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authentication token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"user": userPayload(user)}})
}
