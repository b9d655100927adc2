package disputeRepo

import (
	"context"
	"errors"
	"time"

	"washflow/database/repository"
	"washflow/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoDisputeRepo struct {
	coll *mongo.Collection
}

func NewMongoDisputeRepo(db *mongo.Database) DisputeRepository {
	return &mongoDisputeRepo{coll: db.Collection("disputes")}
}

func (r *mongoDisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *mongoDisputeRepo) GetByID(ctx context.Context, id string) (*models.Dispute, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

func (r *mongoDisputeRepo) GetActiveByOrderID(ctx context.Context, orderID string) (*models.Dispute, error) {
	return r.findOne(ctx, bson.M{"orderId": orderID, "status": bson.M{"$ne": models.DisputeResolved}})
}

func (r *mongoDisputeRepo) findOne(ctx context.Context, filter bson.M) (*models.Dispute, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var d models.Dispute
	if err := r.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *mongoDisputeRepo) Update(ctx context.Context, d *models.Dispute) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	expected := d.Version
	next := *d
	next.Version = expected + 1

	res, err := r.coll.ReplaceOne(ctx, bson.M{"id": d.ID, "version": expected}, &next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrVersionConflict
	}
	d.Version = next.Version
	return nil
}

func (r *mongoDisputeRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.coll.DeleteOne(ctx, bson.M{"id": id})
	return err
}

func (r *mongoDisputeRepo) ListActive(ctx context.Context) ([]models.Dispute, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{"status": bson.M{"$ne": models.DisputeResolved}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []models.Dispute
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoDisputeRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("unique_dispute_id")},
		{Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "status", Value: 1}}, Options: options.Index().SetName("dispute_order_status_idx")},
	})
	return err
}
