package escrowRepo

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

type mongoLedgerStore struct {
	coll *mongo.Collection
}

func NewMongoLedgerStore(db *mongo.Database) LedgerStore {
	return &mongoLedgerStore{coll: db.Collection("escrow_transactions")}
}

func (s *mongoLedgerStore) Insert(ctx context.Context, tx *models.EscrowTransaction) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.coll.InsertOne(ctx, tx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *mongoLedgerStore) GetByID(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	return s.findOne(ctx, bson.M{"id": id})
}

func (s *mongoLedgerStore) GetByOrderID(ctx context.Context, orderID string) (*models.EscrowTransaction, error) {
	return s.findOne(ctx, bson.M{"orderId": orderID})
}

func (s *mongoLedgerStore) findOne(ctx context.Context, filter bson.M) (*models.EscrowTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var tx models.EscrowTransaction
	if err := s.coll.FindOne(ctx, filter).Decode(&tx); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *mongoLedgerStore) Update(ctx context.Context, tx *models.EscrowTransaction) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	expected := tx.Version
	next := *tx
	next.Version = expected + 1

	res, err := s.coll.ReplaceOne(ctx, bson.M{"id": tx.ID, "version": expected}, &next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrVersionConflict
	}
	tx.Version = next.Version
	return nil
}

// EnsureIndexes makes order id unique so Hold stays idempotent across replicas.
func (s *mongoLedgerStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("unique_tx_id")},
		{Keys: bson.D{{Key: "orderId", Value: 1}}, Options: options.Index().SetUnique(true).SetName("unique_tx_order")},
		{Keys: bson.D{{Key: "status", Value: 1}}, Options: options.Index().SetName("tx_status_idx")},
	})
	return err
}
