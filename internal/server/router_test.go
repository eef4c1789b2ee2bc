package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatly-server/internal/auth"
	"chatly-server/internal/crypto"
	"chatly-server/internal/model"
	"chatly-server/internal/store"
	"chatly-server/internal/userstore"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type testEnv struct {
	router *gin.Engine
	store  *store.Store
	users  *userstore.Store
	codec  *crypto.Codec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users, err := userstore.New(":memory:")
	if err != nil {
		t.Fatalf("userstore.New: %v", err)
	}
	t.Cleanup(func() { users.Close() })

	codec, err := crypto.NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	st := store.New()
	tokenCfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	r := NewRouter(Deps{
		Store:       st,
		Users:       users,
		Codec:       codec,
		TokenConfig: tokenCfg,
		Logger:      zerolog.Nop(),
	})
	return &testEnv{router: r, store: st, users: users, codec: codec}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signup then login, returning the user id and a live token.
func (e *testEnv) signupAndLogin(t *testing.T, firstName, email string) (string, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/chat/auth/signup", "", map[string]string{
		"firstName": firstName,
		"lastName":  "Tester",
		"email":     email,
		"password":  "hunter22",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPost, "/chat/auth/login", "", map[string]string{
		"email":    email,
		"password": "hunter22",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Token string `json:"token"`
			User  struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	if resp.Data.Token == "" || resp.Data.User.ID == "" {
		t.Fatalf("incomplete login response: %s", w.Body.String())
	}
	return resp.Data.User.ID, resp.Data.Token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSignupLoginValidateFlow(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signupAndLogin(t, "Ada", "ada@example.com")

	// duplicate email
	w := env.do(t, http.MethodPost, "/chat/auth/signup", "", map[string]string{
		"firstName": "Ada",
		"lastName":  "Tester",
		"email":     "ada@example.com",
		"password":  "other",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/chat/auth/validate", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("validate: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// wrong password
	w = env.do(t, http.MethodPost, "/chat/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", w.Code)
	}
}

func TestLoginRetiresPreviousToken(t *testing.T) {
	env := newTestEnv(t)
	_, first := env.signupAndLogin(t, "Ada", "ada@example.com")

	// Token payloads carry second-granularity timestamps; make sure the
	// second login issues a distinct token.
	time.Sleep(1100 * time.Millisecond)
	w := env.do(t, http.MethodPost, "/chat/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "hunter22",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("second login: expected 200, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/chat/auth/validate", first, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("retired token: expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBotChatEndpoints(t *testing.T) {
	env := newTestEnv(t)
	userID, token := env.signupAndLogin(t, "Ada", "ada@example.com")

	now := time.Now().UnixMilli()
	sess, err := env.store.CreateBotSession(userID, now)
	if err != nil {
		t.Fatalf("CreateBotSession: %v", err)
	}
	sealed, err := env.codec.Encrypt("hello bot")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	msg := model.BotMessage{Sender: "user", Ciphertext: sealed, Timestamp: now}
	if err := env.store.AppendBotMessage(userID, sess.ChatID, msg, now); err != nil {
		t.Fatalf("AppendBotMessage: %v", err)
	}

	w := env.do(t, http.MethodGet, "/chat/"+userID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var listResp struct {
		Data []string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(listResp.Data) != 1 || listResp.Data[0] != sess.ChatID {
		t.Fatalf("unexpected chat list: %v", listResp.Data)
	}

	w = env.do(t, http.MethodGet, "/chat/"+userID+"/"+sess.ChatID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("log: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var logResp struct {
		Data struct {
			Messages []struct {
				Sender  string `json:"sender"`
				Message string `json:"message"`
			} `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &logResp); err != nil {
		t.Fatalf("unmarshal log: %v", err)
	}
	if len(logResp.Data.Messages) != 1 || logResp.Data.Messages[0].Message != "hello bot" {
		t.Fatalf("unexpected log: %s", w.Body.String())
	}

	// another user's token cannot read this history
	_, otherToken := env.signupAndLogin(t, "Eve", "eve@example.com")
	w = env.do(t, http.MethodGet, "/chat/"+userID, otherToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("cross-user list: expected 403, got %d", w.Code)
	}

	w = env.do(t, http.MethodDelete, "/chat/"+userID+"/"+sess.ChatID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	w = env.do(t, http.MethodDelete, "/chat/"+userID+"/"+sess.ChatID, token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("delete again: expected 404, got %d", w.Code)
	}

	if _, err := env.store.CreateBotSession(userID, now); err != nil {
		t.Fatalf("CreateBotSession: %v", err)
	}
	if _, err := env.store.CreateBotSession(userID, now); err != nil {
		t.Fatalf("CreateBotSession: %v", err)
	}
	w = env.do(t, http.MethodDelete, "/chat/"+userID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete all: expected 200, got %d", w.Code)
	}
	var delResp struct {
		Data struct {
			DeletedCount int `json:"deletedCount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &delResp); err != nil {
		t.Fatalf("unmarshal delete all: %v", err)
	}
	if delResp.Data.DeletedCount != 2 {
		t.Fatalf("expected 2 deleted, got %d", delResp.Data.DeletedCount)
	}
}

func TestPrivateChatLogMembership(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.signupAndLogin(t, "Alice", "alice@example.com")
	bobID, _ := env.signupAndLogin(t, "Bob", "bob@example.com")
	_, eveToken := env.signupAndLogin(t, "Eve", "eve@example.com")

	now := time.Now().UnixMilli()
	chat, _, err := env.store.FindOrCreatePrivateChat(aliceID, bobID, now)
	if err != nil {
		t.Fatalf("FindOrCreatePrivateChat: %v", err)
	}
	sealed, err := env.codec.Encrypt("hi bob")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := env.store.AppendPrivateMessage(chat.ID, aliceID, sealed, now); err != nil {
		t.Fatalf("AppendPrivateMessage: %v", err)
	}

	w := env.do(t, http.MethodPost, "/chat/private-chat/chat/"+chat.ID, aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("member log: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Messages []struct {
				Text   string `json:"text"`
				Sender string `json:"sender"`
			} `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Data.Messages) != 1 || resp.Data.Messages[0].Text != "hi bob" {
		t.Fatalf("unexpected log: %s", w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/chat/private-chat/chat/"+chat.ID, eveToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-member log: expected 403, got %d", w.Code)
	}
}

func TestFollowEndpoints(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.signupAndLogin(t, "Alice", "alice@example.com")
	bobID, _ := env.signupAndLogin(t, "Bob", "bob@example.com")

	w := env.do(t, http.MethodPost, "/chat/private-chat/"+aliceID+"/follow", aliceToken, map[string]string{
		"targetUserId": bobID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("follow: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/chat/private-chat/userlist/"+aliceID, aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("userlist: expected 200, got %d", w.Code)
	}
	var listResp struct {
		Data []struct {
			ID          string `json:"id"`
			IsFollowing bool   `json:"isFollowing"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("unmarshal userlist: %v", err)
	}
	if len(listResp.Data) != 1 || listResp.Data[0].ID != bobID || !listResp.Data[0].IsFollowing {
		t.Fatalf("unexpected userlist: %s", w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/chat/private-chat/"+aliceID+"/following", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("following: expected 200, got %d", w.Code)
	}

	// self-follow rejected
	w = env.do(t, http.MethodPost, "/chat/private-chat/"+aliceID+"/follow", aliceToken, map[string]string{
		"targetUserId": aliceID,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("self-follow: expected 400, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/chat/private-chat/"+aliceID+"/unfollow", aliceToken, map[string]string{
		"targetUserId": bobID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unfollow: expected 200, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/chat/private-chat/userlist/"+aliceID, aliceToken, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("unmarshal userlist: %v", err)
	}
	if len(listResp.Data) != 1 || listResp.Data[0].IsFollowing {
		t.Fatalf("expected isFollowing false after unfollow: %s", w.Body.String())
	}
}
