package handler

import (
	"net/http"

	"chatly-server/internal/crypto"
	"chatly-server/internal/middleware"
	"chatly-server/internal/model"
	"chatly-server/internal/store"
	"github.com/gin-gonic/gin"
)

type PrivateChatHandler struct {
	Store *store.Store
	Codec *crypto.Codec
}

func (h *PrivateChatHandler) GetChatLog(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authentication token"})
		return
	}

	chat, err := h.Store.GetPrivateChat(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Chat not found"})
		return
	}

	member := false
	for _, m := range chat.Members {
		if m == userID {
			member = true
			break
		}
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
		return
	}

	messages, err := decryptChatLog(h.Codec, chat)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not read chat history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"chatId":   chat.ID,
		"members":  chat.Members,
		"messages": messages,
	}})
}

func decryptChatLog(codec *crypto.Codec, chat model.PrivateChat) ([]gin.H, error) {
	out := make([]gin.H, 0, len(chat.Messages))
	for _, m := range chat.Messages {
		text, err := codec.Decrypt(m.Ciphertext)
		if err != nil {
			return nil, err
		}
		replies := make([]gin.H, 0, len(m.Replies))
		for _, r := range m.Replies {
			content, err := codec.Decrypt(r.Ciphertext)
			if err != nil {
				return nil, err
			}
			replies = append(replies, gin.H{
				"_id":       r.ID,
				"sender":    r.Sender,
				"content":   content,
				"createdAt": r.CreatedAt,
				"reactions": r.Reactions,
			})
		}
		entry := gin.H{
			"_id":       m.ID,
			"chatId":    chat.ID,
			"sender":    m.Sender,
			"text":      text,
			"createdAt": m.CreatedAt,
			"seen":      m.Seen,
			"reactions": m.Reactions,
			"replies":   replies,
		}
		if m.SeenAt != 0 {
			entry["seenAt"] = m.SeenAt
		}
		out = append(out, entry)
	}
	return out, nil
}
