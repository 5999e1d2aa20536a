package token

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ Store = &MongoStore{}

// MongoStore is a MongoDB-backed implementation of Store, for deployments
// where the token file must outlive the container.
type MongoStore struct {
	tokens   *mongo.Collection
	provider string
}

// NewMongoStore creates a new store backed by the given DB. The provider
// key lets several integrations share the collection.
func NewMongoStore(db *mongo.Database, provider string) *MongoStore {
	return &MongoStore{
		tokens:   db.Collection("oauth_tokens"),
		provider: provider,
	}
}

func (s *MongoStore) Load(ctx context.Context) (*Record, error) {
	var doc struct {
		AccessToken        string    `bson:"access_token"`
		AccessTokenExpiry  time.Time `bson:"access_token_expiry"`
		RefreshToken       string    `bson:"refresh_token"`
		RefreshTokenExpiry time.Time `bson:"refresh_token_expiry"`
		AcquiredAt         time.Time `bson:"acquired_at"`
	}
	err := s.tokens.FindOne(ctx, bson.M{"provider": s.provider}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoToken
		}
		return nil, err
	}
	return &Record{
		AccessToken:        doc.AccessToken,
		AccessTokenExpiry:  doc.AccessTokenExpiry,
		RefreshToken:       doc.RefreshToken,
		RefreshTokenExpiry: doc.RefreshTokenExpiry,
		AcquiredAt:         doc.AcquiredAt,
	}, nil
}

func (s *MongoStore) Save(ctx context.Context, rec *Record) error {
	filter := bson.M{"provider": s.provider}
	upd := bson.M{"$set": bson.M{
		"access_token":         rec.AccessToken,
		"access_token_expiry":  rec.AccessTokenExpiry,
		"refresh_token":        rec.RefreshToken,
		"refresh_token_expiry": rec.RefreshTokenExpiry,
		"acquired_at":          rec.AcquiredAt,
	}}
	opts := options.Update().SetUpsert(true)
	_, err := s.tokens.UpdateOne(ctx, filter, upd, opts)
	return err
}

func (s *MongoStore) Clear(ctx context.Context) error {
	_, err := s.tokens.DeleteOne(ctx, bson.M{"provider": s.provider})
	return err
}
