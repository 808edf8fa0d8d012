package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound is returned when a catalog document does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Listing is the subset of a listing document the messaging layer needs.
type Listing struct {
	ID      string `bson:"_id"`
	Title   string `bson:"title"`
	OwnerID string `bson:"owner_id"`
}

// User is the subset of a user document used for conversation decoration.
type User struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	AvatarKey string `bson:"avatar_key"`
}

// Catalog reads listing and user documents owned by the main marketplace
// service. Messaging never writes to these collections.
type Catalog struct {
	listings *mongo.Collection
	users    *mongo.Collection
	logger   *slog.Logger
}

// NewCatalog wires the catalog against the shared database.
func NewCatalog(client *Client, logger *slog.Logger) *Catalog {
	return &Catalog{
		listings: client.DB.Collection("listings"),
		users:    client.DB.Collection("users"),
		logger:   logger,
	}
}

// ListingByID loads one listing.
func (c *Catalog) ListingByID(ctx context.Context, id string) (*Listing, error) {
	var doc Listing
	err := c.listings.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load listing %s: %w", id, err)
	}
	return &doc, nil
}

// UsersByIDs loads the named users keyed by id; missing users are simply
// absent from the result.
func (c *Catalog) UsersByIDs(ctx context.Context, ids []string) (map[string]User, error) {
	if len(ids) == 0 {
		return map[string]User{}, nil
	}
	cursor, err := c.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer cursor.Close(ctx)

	out := make(map[string]User, len(ids))
	for cursor.Next(ctx) {
		var doc User
		if err := cursor.Decode(&doc); err != nil {
			if c.logger != nil {
				c.logger.Warn("skipping undecodable user document", "error", err)
			}
			continue
		}
		out[doc.ID] = doc
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}
