package conversations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/plexmate/plexmate/src/models"
)

// Mongo stores conversations in a MongoDB collection, one document per
// conversation.
type Mongo struct {
	coll *mongo.Collection
	now  func() time.Time
}

type mongoDoc struct {
	UserID         int64            `bson:"user_id"`
	ConversationID string           `bson:"conversation_id"`
	Title          string           `bson:"title"`
	Messages       []models.Message `bson:"messages"`
	CreatedAt      time.Time        `bson:"created_at"`
	UpdatedAt      time.Time        `bson:"updated_at"`
}

// NewMongo connects to MongoDB and ensures the collection indexes exist.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	coll := client.Database(database).Collection("conversations")
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "conversation_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation indexes: %w", err)
	}
	return &Mongo{coll: coll, now: time.Now}, nil
}

// Close disconnects the underlying client.
func (s *Mongo) Close(ctx context.Context) error {
	return s.coll.Database().Client().Disconnect(ctx)
}

func (s *Mongo) filter(userID int64, conversationID string) bson.M {
	return bson.M{
		"user_id":         userID,
		"conversation_id": conversationID,
		"updated_at":      bson.M{"$gt": s.now().Add(-TTL)},
	}
}

func (s *Mongo) Save(ctx context.Context, userID int64, conversationID string, msgs []models.Message) error {
	now := s.now()
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"user_id": userID, "conversation_id": conversationID},
		bson.M{
			"$set": bson.M{"messages": msgs, "updated_at": now},
			"$setOnInsert": bson.M{
				"title":      DeriveTitle(msgs),
				"created_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", conversationID, err)
	}

	// Trim expired conversations and anything beyond the per-user cap.
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID},
		options.Find().
			SetSort(bson.D{{Key: "updated_at", Value: -1}}).
			SetSkip(MaxPerUser).
			SetProjection(bson.M{"conversation_id": 1}),
	)
	if err != nil {
		return fmt.Errorf("trim conversations for user %d: %w", userID, err)
	}
	var excess []string
	for cursor.Next(ctx) {
		var doc struct {
			ConversationID string `bson:"conversation_id"`
		}
		if err := cursor.Decode(&doc); err == nil {
			excess = append(excess, doc.ConversationID)
		}
	}
	cursor.Close(ctx)

	del := bson.M{"user_id": userID, "$or": []bson.M{
		{"updated_at": bson.M{"$lte": now.Add(-TTL)}},
	}}
	if len(excess) > 0 {
		del["$or"] = append(del["$or"].([]bson.M), bson.M{"conversation_id": bson.M{"$in": excess}})
	}
	if _, err := s.coll.DeleteMany(ctx, del); err != nil {
		return fmt.Errorf("trim conversations for user %d: %w", userID, err)
	}
	return nil
}

func (s *Mongo) Load(ctx context.Context, userID int64, conversationID string) ([]models.Message, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, s.filter(userID, conversationID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	return doc.Messages, nil
}

func (s *Mongo) List(ctx context.Context, userID int64, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	cursor, err := s.coll.Find(ctx,
		bson.M{"user_id": userID, "updated_at": bson.M{"$gt": s.now().Add(-TTL)}},
		options.Find().
			SetSort(bson.D{{Key: "updated_at", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations for user %d: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var out []Summary
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode conversation row: %w", err)
		}
		out = append(out, Summary{
			ConversationID: doc.ConversationID,
			Title:          doc.Title,
			CreatedAt:      doc.CreatedAt,
			UpdatedAt:      doc.UpdatedAt,
		})
	}
	return out, cursor.Err()
}

func (s *Mongo) Delete(ctx context.Context, userID int64, conversationID string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"user_id": userID, "conversation_id": conversationID})
	if err != nil {
		return false, fmt.Errorf("delete conversation %s: %w", conversationID, err)
	}
	return res.DeletedCount > 0, nil
}

func (s *Mongo) History(ctx context.Context, userID int64, conversationID string) (*History, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, s.filter(userID, conversationID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	return &History{
		ConversationID: conversationID,
		Title:          doc.Title,
		Messages:       displayMessages(doc.Messages),
	}, nil
}

var _ Store = (*Mongo)(nil)
