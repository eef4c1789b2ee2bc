package handler

import (
	"errors"
	"net/http"

	"chatly-server/internal/crypto"
	"chatly-server/internal/middleware"
	"chatly-server/internal/store"
	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	Store *store.Store
	Codec *crypto.Codec
}

// requireOwnUserID rejects requests whose :userId path segment does not match
// the authenticated user.
func requireOwnUserID(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authentication token"})
		return "", false
	}
	if c.Param("userId") != userID {
		c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
		return "", false
	}
	return userID, true
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, ok := requireOwnUserID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.Store.ListBotChatIDs(userID)})
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	userID, ok := requireOwnUserID(c)
	if !ok {
		return
	}

	sess, err := h.Store.GetBotSession(userID, c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Chat not found"})
		return
	}

	messages := make([]gin.H, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		text, err := h.Codec.Decrypt(m.Ciphertext)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not read chat history"})
			return
		}
		messages = append(messages, gin.H{
			"sender":    m.Sender,
			"message":   text,
			"timestamp": m.Timestamp,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"chatId":   sess.ChatID,
		"messages": messages,
	}})
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	userID, ok := requireOwnUserID(c)
	if !ok {
		return
	}

	if err := h.Store.DeleteBotSession(userID, c.Param("chatId")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not delete chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (h *ChatHandler) DeleteAllChats(c *gin.Context) {
	userID, ok := requireOwnUserID(c)
	if !ok {
		return
	}

	count := h.Store.DeleteAllBotSessions(userID)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deletedCount": count}})
}
