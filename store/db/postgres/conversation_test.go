package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinechat/internal/profile"
	"github.com/hrygo/divinechat/store"
)

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1", placeholder(1))
	assert.Equal(t, "$1, $2, $3", placeholders(3))
}

func TestBuildListQuery(t *testing.T) {
	id, owner := "c1", "alice"

	tests := []struct {
		name     string
		find     *store.FindConversation
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "owned by id",
			find:     &store.FindConversation{ID: &id, OwnerID: &owner, Limit: 1},
			wantSQL:  "SELECT id, owner_id, title, created_ts, updated_ts, messages FROM conversation WHERE 1 = 1 AND id = $1 AND owner_id = $2 ORDER BY updated_ts DESC, id DESC LIMIT 1",
			wantArgs: []any{"c1", "alice"},
		},
		{
			name:     "summaries",
			find:     &store.FindConversation{OwnerID: &owner, Limit: 50, ExcludeMessages: true},
			wantSQL:  "SELECT id, owner_id, title, created_ts, updated_ts FROM conversation WHERE 1 = 1 AND owner_id = $1 ORDER BY updated_ts DESC, id DESC LIMIT 50",
			wantArgs: []any{"alice"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildListQuery(tt.find)
			assert.Equal(t, tt.wantSQL, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildUpdateStmt(t *testing.T) {
	_, _, err := buildUpdateStmt(&store.UpdateConversation{ID: "c1", OwnerID: "alice"})
	assert.Error(t, err)

	title, ts := "Renamed", int64(42)
	stmt, args, err := buildUpdateStmt(&store.UpdateConversation{ID: "c1", OwnerID: "alice", Title: &title, UpdatedTs: &ts})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE conversation SET title = $1, updated_ts = $2 WHERE id = $3 AND owner_id = $4 RETURNING "+returningFields, stmt)
	assert.Equal(t, []any{"Renamed", int64(42), "c1", "alice"}, args)
}

func TestMessagesCodec(t *testing.T) {
	data, err := marshalMessages(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	messages, err := unmarshalMessages(nil)
	require.NoError(t, err)
	assert.Empty(t, messages)

	_, err = unmarshalMessages([]byte("{"))
	assert.Error(t, err)
}

func TestNewDBRequiresDSN(t *testing.T) {
	_, err := NewDB(&profile.Profile{})
	assert.Error(t, err)
	_, err = NewDB(nil)
	assert.Error(t, err)
}
