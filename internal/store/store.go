package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chatly-server/internal/model"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a chat, message, or reply does not exist. It
// is distinct from a chat that exists but holds no messages.
var ErrNotFound = errors.New("not found")

// Store owns all persisted chat state: per-user bot sessions and pairwise
// private chats. All cross-cutting invariants (one chat per unordered pair,
// one reaction per user per message) are enforced here under the store lock,
// never by callers.
type Store struct {
	mu sync.RWMutex

	stateFile string
	persistMu sync.Mutex
	log       zerolog.Logger

	botSessions  map[string]*model.BotSession // userID + "|" + chatID
	chatsByID    map[string]*model.PrivateChat
	chatIDByPair map[string]string
}

type Options struct {
	StateFile string
	Logger    zerolog.Logger
}

func New() *Store {
	return NewWithOptions(Options{Logger: zerolog.Nop()})
}

func NewWithOptions(opts Options) *Store {
	s := &Store{
		stateFile:    opts.StateFile,
		log:          opts.Logger,
		botSessions:  make(map[string]*model.BotSession),
		chatsByID:    make(map[string]*model.PrivateChat),
		chatIDByPair: make(map[string]string),
	}

	if s.stateFile != "" {
		if err := s.loadFromFile(s.stateFile); err != nil {
			s.log.Warn().Err(err).Str("file", s.stateFile).Msg("chat state load failed")
		}
	}

	return s
}

func botKey(userID, chatID string) string {
	return userID + "|" + chatID
}

// CanonicalPair orders two participant ids deterministically so that the
// same unordered pair always maps to the same key.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func pairKey(a, b string) string {
	low, high := CanonicalPair(a, b)
	return low + "|" + high
}

type persistedState struct {
	Version      int                 `json:"version"`
	BotSessions  []model.BotSession  `json:"botSessions"`
	PrivateChats []model.PrivateChat `json:"privateChats"`
	SavedAt      int64               `json:"savedAt"`
}

func (s *Store) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedState
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != 1 {
		return errors.New("unsupported chat state version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range file.BotSessions {
		sess := file.BotSessions[i]
		if sess.UserID == "" || sess.ChatID == "" {
			continue
		}
		s.botSessions[botKey(sess.UserID, sess.ChatID)] = &sess
	}
	for i := range file.PrivateChats {
		chat := file.PrivateChats[i]
		if chat.ID == "" || len(chat.Members) != 2 {
			continue
		}
		s.chatsByID[chat.ID] = &chat
		s.chatIDByPair[pairKey(chat.Members[0], chat.Members[1])] = chat.ID
	}
	return nil
}

func (s *Store) snapshotLocked() *persistedState {
	if s.stateFile == "" {
		return nil
	}
	snap := &persistedState{Version: 1, SavedAt: time.Now().UnixMilli()}
	for _, sess := range s.botSessions {
		snap.BotSessions = append(snap.BotSessions, *cloneBotSession(sess))
	}
	for _, chat := range s.chatsByID {
		snap.PrivateChats = append(snap.PrivateChats, *clonePrivateChat(chat))
	}
	return snap
}

func (s *Store) persistSnapshot(snap *persistedState) {
	if snap == nil {
		return
	}
	path := s.stateFile

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		s.log.Error().Err(err).Str("dir", dir).Msg("chat state mkdir failed")
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Error().Err(err).Msg("chat state marshal failed")
		return
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		s.log.Error().Err(err).Msg("chat state create temp failed")
		return
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		s.log.Error().Err(err).Msg("chat state chmod failed")
		return
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		s.log.Error().Err(err).Msg("chat state write failed")
		return
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		s.log.Error().Err(err).Msg("chat state sync failed")
		return
	}
	if err := tmp.Close(); err != nil {
		s.log.Error().Err(err).Msg("chat state close failed")
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		s.log.Error().Err(err).Str("file", path).Msg("chat state rename failed")
	}
}

func cloneReactions(reactions []model.Reaction) []model.Reaction {
	if reactions == nil {
		return nil
	}
	out := make([]model.Reaction, len(reactions))
	copy(out, reactions)
	return out
}

func cloneReplies(replies []model.Reply) []model.Reply {
	if replies == nil {
		return nil
	}
	out := make([]model.Reply, len(replies))
	for i, r := range replies {
		r.Reactions = cloneReactions(r.Reactions)
		out[i] = r
	}
	return out
}

func cloneMessages(msgs []model.PrivateMessage) []model.PrivateMessage {
	if msgs == nil {
		return nil
	}
	out := make([]model.PrivateMessage, len(msgs))
	for i, m := range msgs {
		m.Reactions = cloneReactions(m.Reactions)
		m.Replies = cloneReplies(m.Replies)
		out[i] = m
	}
	return out
}

func clonePrivateChat(chat *model.PrivateChat) *model.PrivateChat {
	out := *chat
	out.Members = append([]string(nil), chat.Members...)
	out.Messages = cloneMessages(chat.Messages)
	return &out
}

func cloneBotSession(sess *model.BotSession) *model.BotSession {
	out := *sess
	out.Messages = append([]model.BotMessage(nil), sess.Messages...)
	return &out
}
