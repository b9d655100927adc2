package database

import (
	"context"
	"time"

	"washflow/config"
	"washflow/utils"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
)

// MongoClient is shared by the lane, order, dispute and directory repositories.
var MongoClient *mongo.Client

// InitDB connects to MongoDB. Order and escrow writes are acknowledged by a
// majority so a failover cannot roll back a committed transition.
func InitDB() {
	logger := utils.GetLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(config.AppConfig.DatabaseURL).
		SetWriteConcern(writeconcern.Majority()).
		SetMaxPoolSize(50).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		logger.Fatal("failed to ping MongoDB", zap.Error(err))
	}
	MongoClient = client
	logger.Info("connected to MongoDB", zap.String("database", databaseName()))
}

func databaseName() string {
	if name := config.AppConfig.DatabaseName; name != "" {
		return name
	}
	return "washflow"
}

// Database returns the application database.
func Database() *mongo.Database {
	return MongoClient.Database(databaseName())
}

// PingMongo is the health check for the primary.
func PingMongo(ctx context.Context) error {
	return MongoClient.Ping(ctx, readpref.Primary())
}

// CloseDB disconnects the client, if any.
func CloseDB(ctx context.Context) {
	if MongoClient != nil {
		_ = MongoClient.Disconnect(ctx)
	}
}
