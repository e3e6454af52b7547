package db

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var MongoClient *mongo.Client
var MongoDatabase *mongo.Database

// Collection names.
const (
	UsersCollection   = "users"
	MatchesCollection = "matches"
	VotesCollection   = "votes"
)

// GetCollection returns a collection by name
func GetCollection(collectionName string) *mongo.Collection {
	return MongoDatabase.Collection(collectionName)
}

// extractDBName parses the database name from the URI, defaulting to "test"
func extractDBName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "test"
	}
	if u.Path != "" && u.Path != "/" {
		return u.Path[1:] // Trim leading '/'
	}
	return "test"
}

// ConnectMongoDB establishes a connection to MongoDB using the provided URI
func ConnectMongoDB(uri string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify connection with a ping
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	MongoClient = client
	dbName := extractDBName(uri)
	log.Printf("Using database: %s", dbName)

	MongoDatabase = client.Database(dbName)
	return nil
}

// EnsureIndexes creates the indexes the battle engine relies on:
// vote uniqueness per (match, voter, type), the one-open-match-per-pair
// guard, and the scan paths for listing and finalization.
func EnsureIndexes(ctx context.Context) error {
	votes := GetCollection(VotesCollection)
	_, err := votes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "matchId", Value: 1},
				{Key: "voterId", Value: 1},
				{Key: "voteType", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("vote_match_voter_type"),
		},
		{
			Keys:    bson.D{{Key: "matchId", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("vote_match_timestamp"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create vote indexes: %w", err)
	}

	matches := GetCollection(MatchesCollection)
	_, err = matches.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "matchId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("match_id"),
		},
		{
			// While a pair has an open match, no second one can be created.
			Keys: bson.D{{Key: "pairKey", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("match_open_pair").
				SetPartialFilterExpression(bson.D{{Key: "open", Value: true}}),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "votingClosesAt", Value: 1}},
			Options: options.Index().SetName("match_status_closes"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}, {Key: "matchId", Value: 1}},
			Options: options.Index().SetName("match_created"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create match indexes: %w", err)
	}

	users := GetCollection(UsersCollection)
	_, err = users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("user_username"),
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}
