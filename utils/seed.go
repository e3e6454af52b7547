package utils

import (
	"context"
	"log"
	"time"

	"dancebattlez/db"
	"dancebattlez/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PopulateTestUsers inserts sample battlers, voters and judges for local
// development. Existing usernames are left alone.
func PopulateTestUsers() {
	collection := db.GetCollection(db.UsersCollection)
	now := time.Now().Unix()

	users := []models.User{
		{
			ID:            primitive.NewObjectID(),
			Username:      "breaker_one",
			DisplayName:   "Breaker One",
			AccountStatus: models.AccountRegistered,
			Battler:       1,
			Voter:         1,
			CreatedAt:     now,
			SocialLinks: []models.SocialLink{
				{Provider: "instagram", Handle: "breaker.one", LinkedAt: now},
			},
		},
		{
			ID:            primitive.NewObjectID(),
			Username:      "poplock_queen",
			DisplayName:   "Poplock Queen",
			AccountStatus: models.AccountRegistered,
			Battler:       1,
			Voter:         1,
			CreatedAt:     now,
			SocialLinks: []models.SocialLink{
				{Provider: "youtube", Handle: "PoplockQueen", LinkedAt: now},
			},
		},
		{
			ID:            primitive.NewObjectID(),
			Username:      "headspin_judge",
			DisplayName:   "Headspin Judge",
			AccountStatus: models.AccountRegistered,
			Voter:         1,
			Judge:         1,
			CreatedAt:     now,
		},
		{
			ID:            primitive.NewObjectID(),
			Username:      "crowd_voter",
			DisplayName:   "Crowd Voter",
			AccountStatus: models.AccountRegistered,
			Voter:         1,
			CreatedAt:     now,
			SocialLinks: []models.SocialLink{
				{Provider: "twitter", Handle: "crowdvoter", LinkedAt: now},
			},
		},
	}

	for _, user := range users {
		count, err := collection.CountDocuments(context.Background(), bson.M{"username": user.Username})
		if err != nil || count > 0 {
			continue
		}
		if _, err := collection.InsertOne(context.Background(), user); err != nil {
			log.Printf("Failed to seed user %s: %v", user.Username, err)
		}
	}
}
