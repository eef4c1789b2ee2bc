package model

type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CurrentToken string
}

// Ciphertext is the sealed form of a message body. The three fields are
// produced together by the codec and must always travel together.
type Ciphertext struct {
	IV      string `json:"iv"`
	Content string `json:"content"`
	AuthTag string `json:"authTag"`
}

type BotMessage struct {
	Sender string `json:"sender"` // "user" or "bot"
	Ciphertext
	Timestamp int64 `json:"timestamp"`
}

type BotSession struct {
	UserID    string       `json:"userId"`
	ChatID    string       `json:"chatId"`
	Messages  []BotMessage `json:"messages"`
	CreatedAt int64        `json:"createdAt"`
	UpdatedAt int64        `json:"updatedAt"`
}

type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

type Reply struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Ciphertext
	CreatedAt int64      `json:"createdAt"`
	Reactions []Reaction `json:"reactions"`
}

type PrivateMessage struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Ciphertext
	CreatedAt int64      `json:"createdAt"`
	Seen      bool       `json:"seen"`
	SeenAt    int64      `json:"seenAt,omitempty"`
	Reactions []Reaction `json:"reactions"`
	Replies   []Reply    `json:"replies"`
}

type PrivateChat struct {
	ID        string           `json:"id"`
	Members   []string         `json:"members"` // canonical order, always two
	Messages  []PrivateMessage `json:"messages"`
	CreatedAt int64            `json:"createdAt"`
	UpdatedAt int64            `json:"updatedAt"`
}
