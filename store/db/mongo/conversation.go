package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hrygo/divinechat/store"
)

type conversationDoc struct {
	ID        string          `bson:"_id"`
	OwnerID   string          `bson:"owner_id"`
	Title     string          `bson:"title"`
	Messages  []store.Message `bson:"messages,omitempty"`
	CreatedTs int64           `bson:"created_ts"`
	UpdatedTs int64           `bson:"updated_ts"`
}

// toDoc copies c into its document form. BSON datetimes hold milliseconds,
// so message timestamps are truncated here rather than on the way back.
func toDoc(c *store.Conversation) *conversationDoc {
	messages := make([]store.Message, len(c.Messages))
	for i, m := range c.Messages {
		m.Timestamp = m.Timestamp.Truncate(time.Millisecond)
		messages[i] = m
	}
	return &conversationDoc{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Title:     c.Title,
		Messages:  messages,
		CreatedTs: c.CreatedTs,
		UpdatedTs: c.UpdatedTs,
	}
}

func (doc *conversationDoc) toConversation(withMessages bool) *store.Conversation {
	c := &store.Conversation{
		ID:        doc.ID,
		OwnerID:   doc.OwnerID,
		Title:     doc.Title,
		CreatedTs: doc.CreatedTs,
		UpdatedTs: doc.UpdatedTs,
	}
	if withMessages {
		c.Messages = doc.Messages
		if c.Messages == nil {
			c.Messages = []store.Message{}
		}
	}
	return c
}

func ownedFilter(id, ownerID string) bson.D {
	return bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}}
}

func buildFind(find *store.FindConversation) (bson.D, *options.FindOptions) {
	filter := bson.D{}
	if find.ID != nil {
		filter = append(filter, bson.E{Key: "_id", Value: *find.ID})
	}
	if find.OwnerID != nil {
		filter = append(filter, bson.E{Key: "owner_id", Value: *find.OwnerID})
	}

	opts := options.Find().SetSort(bson.D{{Key: "updated_ts", Value: -1}, {Key: "_id", Value: -1}})
	if find.Limit > 0 {
		opts.SetLimit(int64(find.Limit))
	}
	if find.ExcludeMessages {
		opts.SetProjection(bson.D{{Key: "messages", Value: 0}})
	}
	return filter, opts
}

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	if _, err := d.collection.InsertOne(ctx, toDoc(create)); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	filter, opts := buildFind(find)
	cursor, err := d.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	list := make([]*store.Conversation, 0)
	for cursor.Next(ctx) {
		var doc conversationDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode conversation: %w", err)
		}
		list = append(list, doc.toConversation(!find.ExcludeMessages))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return list, nil
}

// ReplaceConversation sets title, messages and updated_ts in one document update.
func (d *DB) ReplaceConversation(ctx context.Context, conversation *store.Conversation) (*store.Conversation, error) {
	doc := toDoc(conversation)
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "title", Value: doc.Title},
		{Key: "messages", Value: doc.Messages},
		{Key: "updated_ts", Value: doc.UpdatedTs},
	}}}
	return d.findOneAndUpdate(ctx, ownedFilter(conversation.ID, conversation.OwnerID), update)
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set := bson.D{}
	if update.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *update.Title})
	}
	if update.UpdatedTs != nil {
		set = append(set, bson.E{Key: "updated_ts", Value: *update.UpdatedTs})
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	return d.findOneAndUpdate(ctx, ownedFilter(update.ID, update.OwnerID), bson.D{{Key: "$set", Value: set}})
}

func (d *DB) findOneAndUpdate(ctx context.Context, filter, update bson.D) (*store.Conversation, error) {
	var doc conversationDoc
	err := d.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return doc.toConversation(true), nil
}

func (d *DB) DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error {
	result, err := d.collection.DeleteOne(ctx, ownedFilter(delete.ID, delete.OwnerID))
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
