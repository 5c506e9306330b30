package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hrygo/divinechat/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	messages, err := marshalMessages(create.Messages)
	if err != nil {
		return nil, err
	}

	fields := []string{"id", "owner_id", "title", "messages", "created_ts", "updated_ts"}
	args := []any{create.ID, create.OwnerID, create.Title, messages, create.CreatedTs, create.UpdatedTs}
	stmt := `INSERT INTO conversation (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "owner_id = ?"), append(args, *find.OwnerID)
	}

	fields := []string{"id", "owner_id", "title", "created_ts", "updated_ts"}
	if !find.ExcludeMessages {
		fields = append(fields, "messages")
	}

	query := `SELECT ` + strings.Join(fields, ", ") + `
		FROM conversation
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC, id DESC`
	if find.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Conversation, 0)
	for rows.Next() {
		c := &store.Conversation{}
		var messages string
		dests := []any{&c.ID, &c.OwnerID, &c.Title, &c.CreatedTs, &c.UpdatedTs}
		if !find.ExcludeMessages {
			dests = append(dests, &messages)
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if !find.ExcludeMessages {
			if c.Messages, err = unmarshalMessages(messages); err != nil {
				return nil, err
			}
		}
		list = append(list, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return list, nil
}

func (d *DB) ReplaceConversation(ctx context.Context, conversation *store.Conversation) (*store.Conversation, error) {
	messages, err := marshalMessages(conversation.Messages)
	if err != nil {
		return nil, err
	}

	// A single UPDATE is atomic: the message document is never partially written.
	stmt := `UPDATE conversation SET title = ?, messages = ?, updated_ts = ?
		WHERE id = ? AND owner_id = ?
		RETURNING id, owner_id, title, messages, created_ts, updated_ts`
	return d.scanOne(d.db.QueryRowContext(ctx, stmt,
		conversation.Title, messages, conversation.UpdatedTs, conversation.ID, conversation.OwnerID,
	))
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = ?"), append(args, *update.Title)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *update.UpdatedTs)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID, update.OwnerID)
	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE id = ? AND owner_id = ?
		RETURNING id, owner_id, title, messages, created_ts, updated_ts`
	return d.scanOne(d.db.QueryRowContext(ctx, stmt, args...))
}

func (d *DB) DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM conversation WHERE id = ? AND owner_id = ?`, delete.ID, delete.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (d *DB) scanOne(row *sql.Row) (*store.Conversation, error) {
	c := &store.Conversation{}
	var messages string
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &messages, &c.CreatedTs, &c.UpdatedTs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	var err error
	if c.Messages, err = unmarshalMessages(messages); err != nil {
		return nil, err
	}
	return c, nil
}

func marshalMessages(messages []store.Message) (string, error) {
	if messages == nil {
		messages = []store.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("failed to marshal messages: %w", err)
	}
	return string(data), nil
}

func unmarshalMessages(raw string) ([]store.Message, error) {
	messages := []store.Message{}
	if raw == "" {
		return messages, nil
	}
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return messages, nil
}

func placeholders(n int) string {
	return strings.Repeat("?, ", n-1) + "?"
}
