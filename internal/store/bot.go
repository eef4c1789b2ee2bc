package store

import (
	"sort"

	"chatly-server/internal/model"
	"github.com/google/uuid"
)

func (s *Store) CreateBotSession(userID string, now int64) (model.BotSession, error) {
	if userID == "" {
		return model.BotSession{}, ErrNotFound
	}

	s.mu.Lock()
	sess := &model.BotSession{
		UserID:    userID,
		ChatID:    uuid.NewString(),
		Messages:  []model.BotMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.botSessions[botKey(userID, sess.ChatID)] = sess
	out := *cloneBotSession(sess)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistSnapshot(snap)
	return out, nil
}

// AppendBotMessage appends to the session's log, creating the session if the
// chat id has never been persisted. Sends never overwrite history.
func (s *Store) AppendBotMessage(userID, chatID string, msg model.BotMessage, now int64) error {
	if userID == "" || chatID == "" {
		return ErrNotFound
	}

	s.mu.Lock()
	key := botKey(userID, chatID)
	sess, ok := s.botSessions[key]
	if !ok {
		sess = &model.BotSession{
			UserID:    userID,
			ChatID:    chatID,
			Messages:  []model.BotMessage{},
			CreatedAt: now,
		}
		s.botSessions[key] = sess
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = now
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistSnapshot(snap)
	return nil
}

func (s *Store) GetBotSession(userID, chatID string) (model.BotSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.botSessions[botKey(userID, chatID)]
	if !ok {
		return model.BotSession{}, ErrNotFound
	}
	return *cloneBotSession(sess), nil
}

func (s *Store) ListBotChatIDs(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		chatID    string
		createdAt int64
	}
	entries := make([]entry, 0)
	for _, sess := range s.botSessions {
		if sess.UserID == userID {
			entries = append(entries, entry{sess.ChatID, sess.CreatedAt})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].createdAt < entries[j].createdAt })

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.chatID)
	}
	return ids
}

func (s *Store) DeleteBotSession(userID, chatID string) error {
	s.mu.Lock()
	key := botKey(userID, chatID)
	if _, ok := s.botSessions[key]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.botSessions, key)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistSnapshot(snap)
	return nil
}

// DeleteAllBotSessions removes every bot session owned by the user and
// reports how many were removed.
func (s *Store) DeleteAllBotSessions(userID string) int {
	s.mu.Lock()
	removed := 0
	for key, sess := range s.botSessions {
		if sess.UserID == userID {
			delete(s.botSessions, key)
			removed++
		}
	}
	var snap *persistedState
	if removed > 0 {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	s.persistSnapshot(snap)
	return removed
}
