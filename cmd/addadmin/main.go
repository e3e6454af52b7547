package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"dancebattlez/config"
	"dancebattlez/db"
	"dancebattlez/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	username := flag.String("username", "", "Admin username (required)")
	password := flag.String("password", "", "Admin password (required)")
	name := flag.String("name", "", "Display name (defaults to username)")
	configPath := flag.String("config", "config/config.prod.yml", "Path to config file")
	flag.Parse()

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *name == "" {
		*name = *username
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := db.ConnectMongoDB(cfg.Database.URI); err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer db.MongoClient.Disconnect(context.Background())

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	dbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	users := db.GetCollection(db.UsersCollection)

	var existing models.User
	err = users.FindOne(dbCtx, bson.M{"username": *username}).Decode(&existing)
	switch err {
	case nil:
		// Promote the existing account and rotate its password.
		_, err = users.UpdateOne(dbCtx, bson.M{"username": *username}, bson.M{
			"$set": bson.M{"admin": 1, "passwordHash": string(hashedPassword)},
		})
		if err != nil {
			log.Fatalf("Failed to promote user: %v", err)
		}
		fmt.Printf("User %s promoted to admin\n", *username)
	case mongo.ErrNoDocuments:
		_, err = users.InsertOne(dbCtx, models.User{
			Username:      *username,
			DisplayName:   *name,
			PasswordHash:  string(hashedPassword),
			AccountStatus: models.AccountRegistered,
			CreatedAt:     time.Now().Unix(),
			Admin:         1,
		})
		if err != nil {
			log.Fatalf("Failed to create admin: %v", err)
		}
		fmt.Printf("Admin %s created\n", *username)
	default:
		log.Fatalf("Database error: %v", err)
	}
}
