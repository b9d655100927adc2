package directoryRepo

import (
	"context"
	"errors"
	"time"

	"washflow/database/repository"
	"washflow/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Source is the read-only view over drivers, vehicles and providers.
type Source interface {
	Driver(ctx context.Context, id string) (*models.DriverProfile, error)
	Vehicle(ctx context.Context, id string) (*models.VehicleRecord, error)
	Provider(ctx context.Context, id string) (*models.ProviderProfile, error)
}

type mongoSource struct {
	drivers   *mongo.Collection
	vehicles  *mongo.Collection
	providers *mongo.Collection
}

func NewMongoSource(db *mongo.Database) Source {
	return &mongoSource{
		drivers:   db.Collection("drivers"),
		vehicles:  db.Collection("vehicles"),
		providers: db.Collection("providers"),
	}
}

func (s *mongoSource) Driver(ctx context.Context, id string) (*models.DriverProfile, error) {
	var out models.DriverProfile
	return &out, findByID(ctx, s.drivers, id, &out)
}

func (s *mongoSource) Vehicle(ctx context.Context, id string) (*models.VehicleRecord, error) {
	var out models.VehicleRecord
	return &out, findByID(ctx, s.vehicles, id, &out)
}

func (s *mongoSource) Provider(ctx context.Context, id string) (*models.ProviderProfile, error) {
	var out models.ProviderProfile
	return &out, findByID(ctx, s.providers, id, &out)
}

func findByID(ctx context.Context, coll *mongo.Collection, id string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := coll.FindOne(ctx, bson.M{"id": id}).Decode(out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return repository.ErrNotFound
		}
		return err
	}
	return nil
}
