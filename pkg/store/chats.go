package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chat types
const (
	ChatTypeUser    = "user"
	ChatTypeChannel = "channel"
	ChatTypeGroup   = "group"
)

// DefaultPlatform is stored when a chat does not name one
const DefaultPlatform = "telegram"

// ErrNotFound is returned by Get for an unknown chat id
var ErrNotFound = &Error{Code: "NOT_FOUND", Message: "chat not found"}

// JoinedChat is one row of joined_chats. Timestamps are unix milliseconds.
type JoinedChat struct {
	ID        string `json:"id"`
	Platform  string `json:"platform"`
	ChatID    string `json:"chatId"`
	ChatName  string `json:"chatName"`
	ChatType  string `json:"chatType"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

const schema = `CREATE TABLE IF NOT EXISTS joined_chats (
	id         TEXT PRIMARY KEY,
	platform   TEXT NOT NULL DEFAULT 'telegram',
	chat_id    TEXT NOT NULL UNIQUE,
	chat_name  TEXT NOT NULL DEFAULT '',
	chat_type  TEXT NOT NULL DEFAULT 'user',
	created_at BIGINT NOT NULL DEFAULT 0,
	updated_at BIGINT NOT NULL DEFAULT 0
)`

const chatColumns = `id, platform, chat_id, chat_name, chat_type, created_at, updated_at`

const upsertChat = `INSERT INTO joined_chats (` + chatColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (chat_id) DO UPDATE SET
	platform = excluded.platform,
	chat_name = excluded.chat_name,
	chat_type = excluded.chat_type,
	updated_at = excluded.updated_at
RETURNING ` + chatColumns

// ChatStore records the chats a user has joined. The SQL is shared by
// sqlite and postgres.
type ChatStore struct {
	pool *Pool
	now  func() time.Time
}

func NewChatStore(pool *Pool) *ChatStore {
	return &ChatStore{pool: pool, now: time.Now}
}

// Migrate creates the table when missing
func (s *ChatStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "migrate", schema); err != nil {
		return fmt.Errorf("migrate joined_chats: %w", err)
	}
	return nil
}

// Record inserts chat, or updates name, type and platform of the row with
// the same chat id. The stored row is returned; on update it keeps its
// original id and created_at.
func (s *ChatStore) Record(ctx context.Context, chat JoinedChat) (JoinedChat, error) {
	if chat.ChatID == "" {
		return JoinedChat{}, &Error{Code: "INVALID_INPUT", Message: "chat id cannot be empty"}
	}
	if chat.Platform == "" {
		chat.Platform = DefaultPlatform
	}
	switch chat.ChatType {
	case "":
		chat.ChatType = ChatTypeUser
	case ChatTypeUser, ChatTypeChannel, ChatTypeGroup:
	default:
		return JoinedChat{}, &Error{Code: "INVALID_INPUT", Message: fmt.Sprintf("unknown chat type %q", chat.ChatType)}
	}

	now := s.now().UnixMilli()
	row := s.pool.QueryRow(ctx, "upsert", upsertChat,
		uuid.NewString(), chat.Platform, chat.ChatID, chat.ChatName, chat.ChatType, now, now)
	stored, err := scanChat(row)
	if err != nil {
		return JoinedChat{}, fmt.Errorf("record chat %s: %w", chat.ChatID, err)
	}
	return stored, nil
}

// Get returns the chat with the given chat id
func (s *ChatStore) Get(ctx context.Context, chatID string) (JoinedChat, error) {
	row := s.pool.QueryRow(ctx, "select",
		`SELECT `+chatColumns+` FROM joined_chats WHERE chat_id = $1`, chatID)
	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return JoinedChat{}, ErrNotFound
	}
	if err != nil {
		return JoinedChat{}, fmt.Errorf("get chat %s: %w", chatID, err)
	}
	return chat, nil
}

// List returns the chats of a platform, most recently updated first. An
// empty platform lists every platform; limit <= 0 means no limit.
func (s *ChatStore) List(ctx context.Context, platform string, limit int) ([]JoinedChat, error) {
	query := `SELECT ` + chatColumns + ` FROM joined_chats`
	var args []any
	if platform != "" {
		args = append(args, platform)
		query += ` WHERE platform = $1`
	}
	query += ` ORDER BY updated_at DESC, chat_id`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, "list", query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := []JoinedChat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (JoinedChat, error) {
	var c JoinedChat
	err := row.Scan(&c.ID, &c.Platform, &c.ChatID, &c.ChatName, &c.ChatType, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
