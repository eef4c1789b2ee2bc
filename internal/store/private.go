package store

import (
	"chatly-server/internal/model"
	"github.com/google/uuid"
)

// FindOrCreatePrivateChat resolves the one chat for an unordered pair of
// participants, creating it with an empty log on first contact. The lookup
// and insert happen under one lock so concurrent first-contact requests from
// both sides converge on a single chat.
func (s *Store) FindOrCreatePrivateChat(a, b string, now int64) (model.PrivateChat, bool, error) {
	if a == "" || b == "" || a == b {
		return model.PrivateChat{}, false, ErrNotFound
	}

	s.mu.Lock()
	key := pairKey(a, b)
	if id, ok := s.chatIDByPair[key]; ok {
		out := *clonePrivateChat(s.chatsByID[id])
		s.mu.Unlock()
		return out, false, nil
	}

	low, high := CanonicalPair(a, b)
	chat := &model.PrivateChat{
		ID:        uuid.NewString(),
		Members:   []string{low, high},
		Messages:  []model.PrivateMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.chatsByID[chat.ID] = chat
	s.chatIDByPair[key] = chat.ID
	out := *clonePrivateChat(chat)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistSnapshot(snap)
	return out, true, nil
}

func (s *Store) GetPrivateChat(chatID string) (model.PrivateChat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chatsByID[chatID]
	if !ok {
		return model.PrivateChat{}, ErrNotFound
	}
	return *clonePrivateChat(chat), nil
}

func (s *Store) AppendPrivateMessage(chatID, sender string, body model.Ciphertext, now int64) (model.PrivateMessage, error) {
	s.mu.Lock()
	chat, ok := s.chatsByID[chatID]
	if !ok {
		s.mu.Unlock()
		return model.PrivateMessage{}, ErrNotFound
	}

	msg := model.PrivateMessage{
		ID:         uuid.NewString(),
		Sender:     sender,
		Ciphertext: body,
		CreatedAt:  now,
		Reactions:  []model.Reaction{},
		Replies:    []model.Reply{},
	}
	chat.Messages = append(chat.Messages, msg)
	chat.UpdatedAt = now
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistSnapshot(snap)
	return msg, nil
}

// MarkSeen flips every unseen message not sent by the reader in one pass and
// returns the full updated log.
func (s *Store) MarkSeen(chatID, readerID string, now int64) ([]model.PrivateMessage, error) {
	s.mu.Lock()
	chat, ok := s.chatsByID[chatID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	changed := false
	for i := range chat.Messages {
		m := &chat.Messages[i]
		if m.Sender != readerID && !m.Seen {
			m.Seen = true
			m.SeenAt = now
			changed = true
		}
	}
	var snap *persistedState
	if changed {
		chat.UpdatedAt = now
		snap = s.snapshotLocked()
	}
	out := cloneMessages(chat.Messages)
	s.mu.Unlock()

	s.persistSnapshot(snap)
	return out, nil
}

// SetMessageReaction replaces any existing reaction from the user on the
// message with the given emoji, keeping at most one reaction per user.
func (s *Store) SetMessageReaction(chatID, messageID, userID, emoji string) ([]model.Reaction, error) {
	s.mu.Lock()
	msg, err := s.findMessageLocked(chatID, messageID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	msg.Reactions = replaceReaction(msg.Reactions, userID, emoji)
	out := cloneReactions(msg.Reactions)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistSnapshot(snap)
	return out, nil
}

func (s *Store) AppendReply(chatID, messageID, sender string, body model.Ciphertext, now int64) ([]model.Reply, error) {
	s.mu.Lock()
	msg, err := s.findMessageLocked(chatID, messageID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	reply := model.Reply{
		ID:         uuid.NewString(),
		Sender:     sender,
		Ciphertext: body,
		CreatedAt:  now,
		Reactions:  []model.Reaction{},
	}
	msg.Replies = append(msg.Replies, reply)
	out := cloneReplies(msg.Replies)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistSnapshot(snap)
	return out, nil
}

func (s *Store) SetReplyReaction(chatID, messageID, replyID, userID, emoji string) ([]model.Reaction, error) {
	s.mu.Lock()
	msg, err := s.findMessageLocked(chatID, messageID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var reply *model.Reply
	for i := range msg.Replies {
		if msg.Replies[i].ID == replyID {
			reply = &msg.Replies[i]
			break
		}
	}
	if reply == nil {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	reply.Reactions = replaceReaction(reply.Reactions, userID, emoji)
	out := cloneReactions(reply.Reactions)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistSnapshot(snap)
	return out, nil
}

func (s *Store) findMessageLocked(chatID, messageID string) (*model.PrivateMessage, error) {
	chat, ok := s.chatsByID[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	for i := range chat.Messages {
		if chat.Messages[i].ID == messageID {
			return &chat.Messages[i], nil
		}
	}
	return nil, ErrNotFound
}

func replaceReaction(reactions []model.Reaction, userID, emoji string) []model.Reaction {
	out := reactions[:0]
	for _, r := range reactions {
		if r.UserID != userID {
			out = append(out, r)
		}
	}
	return append(out, model.Reaction{UserID: userID, Emoji: emoji})
}
