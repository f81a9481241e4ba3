package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson" // Use bson for index keys
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// One prompt template per name within a category
	templatesCollection := db.Collection("prompt_templates")
	templateIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}, {Key: "category", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "category", Value: 1}},
		},
	}
	_, err := templatesCollection.Indexes().CreateMany(context.Background(), templateIndexes)
	if err != nil {
		return err
	}

	// One legal page per document type
	legalCollection := db.Collection("legal_pages")
	legalIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "type", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "slug", Value: 1}},
		},
	}
	_, err = legalCollection.Indexes().CreateMany(context.Background(), legalIndexes)
	if err != nil {
		return err
	}

	// Content request history is queried per user, newest first
	requestsCollection := db.Collection("ai_content_requests")
	requestIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "content_type", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
	_, err = requestsCollection.Indexes().CreateMany(context.Background(), requestIndexes)
	if err != nil {
		return err
	}

	// Image prompts are listed per user
	imagePromptsCollection := db.Collection("ai_image_prompts")
	imagePromptIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	_, err = imagePromptsCollection.Indexes().CreateMany(context.Background(), imagePromptIndexes)
	if err != nil {
		return err
	}

	// Dispatched legal notifications, queried per page
	notificationsCollection := db.Collection("legal_notifications")
	notificationIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "page_id", Value: 1}, {Key: "dispatched_at", Value: -1}},
		},
	}
	_, err = notificationsCollection.Indexes().CreateMany(context.Background(), notificationIndexes)
	if err != nil {
		return err
	}

	return nil
}
