package userstore

import (
	"database/sql"
	"errors"

	"chatly-server/internal/model"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already exists")
	ErrSelfFollow = errors.New("cannot follow yourself")
)

// Store persists users and the follow graph in sqlite. Follow edges live in
// a single (follower, followee) table, so the following/followers mirror is
// consistent by construction.
type Store struct {
	db *sql.DB
}

func New(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		current_token TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS follows (
		follower_id TEXT NOT NULL,
		followee_id TEXT NOT NULL,
		PRIMARY KEY (follower_id, followee_id),
		FOREIGN KEY (follower_id) REFERENCES users(id),
		FOREIGN KEY (followee_id) REFERENCES users(id)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateUser(firstName, lastName, email, passwordHash string) (model.User, error) {
	user := model.User{
		ID:           uuid.NewString(),
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: passwordHash,
	}

	_, err := s.db.Exec(
		"INSERT INTO users (id, first_name, last_name, email, password) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.FirstName, user.LastName, user.Email, user.PasswordHash,
	)
	if err != nil {
		if _, lookupErr := s.GetUserByEmail(email); lookupErr == nil {
			return model.User{}, ErrEmailTaken
		}
		return model.User{}, err
	}
	return user, nil
}

func (s *Store) GetUserByEmail(email string) (model.User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT id, first_name, last_name, email, password, current_token FROM users WHERE email = ?", email))
}

func (s *Store) GetUserByID(id string) (model.User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT id, first_name, last_name, email, password, current_token FROM users WHERE id = ?", id))
}

func (s *Store) scanUser(row *sql.Row) (model.User, error) {
	var user model.User
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.PasswordHash, &user.CurrentToken)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

// SetCurrentToken records the active credential for single-active-session
// enforcement; a login invalidates every earlier token.
func (s *Store) SetCurrentToken(userID, token string) error {
	result, err := s.db.Exec("UPDATE users SET current_token = ? WHERE id = ?", token, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type UserWithStatus struct {
	ID          string
	FirstName   string
	LastName    string
	Email       string
	IsFollowing bool
}

func (s *Store) ListOtherUsers(userID string) ([]UserWithStatus, error) {
	rows, err := s.db.Query(`
		SELECT u.id, u.first_name, u.last_name, u.email,
			EXISTS (SELECT 1 FROM follows f WHERE f.follower_id = ? AND f.followee_id = u.id)
		FROM users u WHERE u.id != ? ORDER BY u.first_name, u.last_name`,
		userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]UserWithStatus, 0)
	for rows.Next() {
		var u UserWithStatus
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.IsFollowing); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) ListFollowing(userID string) ([]model.User, error) {
	rows, err := s.db.Query(`
		SELECT u.id, u.first_name, u.last_name, u.email
		FROM follows f JOIN users u ON u.id = f.followee_id
		WHERE f.follower_id = ? ORDER BY u.first_name, u.last_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Follow is idempotent: following an already-followed user succeeds without
// duplicating the edge.
func (s *Store) Follow(userID, targetID string) error {
	if userID == targetID {
		return ErrSelfFollow
	}
	if _, err := s.GetUserByID(targetID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO follows (follower_id, followee_id) VALUES (?, ?)",
		userID, targetID)
	return err
}

func (s *Store) Unfollow(userID, targetID string) error {
	if _, err := s.GetUserByID(targetID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"DELETE FROM follows WHERE follower_id = ? AND followee_id = ?",
		userID, targetID)
	return err
}
