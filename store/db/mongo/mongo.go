// Package mongo stores each conversation as one document with an embedded
// messages array.
package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/hrygo/divinechat/internal/profile"
	"github.com/hrygo/divinechat/store"
)

const (
	defaultDatabase = "divinechat"
	collectionName  = "conversation"
)

type DB struct {
	client     *mongo.Client
	collection *mongo.Collection
	profile    *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}
	database, err := databaseName(profile.DSN)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(profile.DSN).
		SetAppName("divinechat").
		SetMaxPoolSize(25))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongo")
	}

	return &DB{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
		profile:    profile,
	}, nil
}

// databaseName takes the database from the URI path, falling back to the default.
func databaseName(dsn string) (string, error) {
	cs, err := connstring.ParseAndValidate(dsn)
	if err != nil {
		return "", errors.Wrap(err, "invalid mongo dsn")
	}
	if cs.Database == "" {
		return defaultDatabase, nil
	}
	return cs.Database, nil
}

func (d *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// Migrate ensures the listing index exists.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_ts", Value: -1}},
		Options: options.Index().SetName("idx_conversation_owner_updated"),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create mongo index")
	}
	return nil
}
