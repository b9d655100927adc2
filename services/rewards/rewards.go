package rewards

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"washflow/models"
	"washflow/services/tasks"
	"washflow/utils"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// PointsPerUnit is the loyalty rate: one point per whole currency unit paid.
const PointsPerUnit = 1

// PointsFor converts a captured amount in minor units into points.
func PointsFor(minorAmount int64) int64 {
	return minorAmount / 100 * PointsPerUnit
}

// Awarder grants loyalty points for a paid order. Implementations are
// idempotent per order and user.
type Awarder interface {
	AwardPoints(ctx context.Context, userID string, points int64, category, orderID string) error
}

// PointsStore persists balances.
type PointsStore interface {
	// Award applies a grant once; it reports false when the order was already rewarded.
	Award(ctx context.Context, p models.RewardPayload) (bool, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

// DirectAwarder writes straight to a store.
type DirectAwarder struct {
	Store  PointsStore
	Logger *zap.Logger
}

func NewDirectAwarder(store PointsStore, logger *zap.Logger) *DirectAwarder {
	return &DirectAwarder{Store: store, Logger: utils.LoggerOrNop(logger)}
}

func (a *DirectAwarder) AwardPoints(ctx context.Context, userID string, points int64, category, orderID string) error {
	applied, err := a.Store.Award(ctx, models.RewardPayload{UserID: userID, OrderID: orderID, Points: points, Category: category})
	if err != nil {
		return err
	}
	if !applied {
		a.Logger.Debug("rewards already granted", zap.String("orderId", orderID), zap.String("userId", userID))
	}
	return nil
}

// QueueAwarder enqueues the grant for the rewards worker.
type QueueAwarder struct {
	Client *asynq.Client
}

func NewQueueAwarder(client *asynq.Client) *QueueAwarder {
	return &QueueAwarder{Client: client}
}

func (a *QueueAwarder) AwardPoints(ctx context.Context, userID string, points int64, category, orderID string) error {
	task, opts, err := tasks.NewRewardTask(models.RewardPayload{UserID: userID, OrderID: orderID, Points: points, Category: category})
	if err != nil {
		return err
	}
	if _, err := a.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue reward: %w", err)
	}
	return nil
}

type rewardAccount struct {
	UserID    string    `bson:"userId"`
	Points    int64     `bson:"points"`
	Orders    []string  `bson:"orders"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoPointsStore keeps one account document per user. The awarded order IDs
// live on the document so a grant and its dedup check are a single write.
type MongoPointsStore struct {
	coll *mongo.Collection
}

func NewMongoPointsStore(db *mongo.Database) *MongoPointsStore {
	return &MongoPointsStore{coll: db.Collection("reward_accounts")}
}

func (s *MongoPointsStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *MongoPointsStore) Award(ctx context.Context, p models.RewardPayload) (bool, error) {
	filter := bson.M{"userId": p.UserID, "orders": bson.M{"$ne": p.OrderID}}
	update := bson.M{
		"$inc":  bson.M{"points": p.Points},
		"$push": bson.M{"orders": p.OrderID},
		"$set":  bson.M{"updatedAt": time.Now()},
	}
	res, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// The upsert collides with the unique index when the order was already
		// granted on an existing account.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("award points: %w", err)
	}
	return res.ModifiedCount > 0 || res.UpsertedCount > 0, nil
}

func (s *MongoPointsStore) Balance(ctx context.Context, userID string) (int64, error) {
	var acc rewardAccount
	err := s.coll.FindOne(ctx, bson.M{"userId": userID}).Decode(&acc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load reward account: %w", err)
	}
	return acc.Points, nil
}

// MemoryPointsStore is the in-process store.
type MemoryPointsStore struct {
	mu       sync.Mutex
	balances map[string]int64
	granted  map[string]bool
}

func NewMemoryPointsStore() *MemoryPointsStore {
	return &MemoryPointsStore{balances: map[string]int64{}, granted: map[string]bool{}}
}

func (s *MemoryPointsStore) Award(_ context.Context, p models.RewardPayload) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := p.UserID + "/" + p.OrderID
	if s.granted[key] {
		return false, nil
	}
	s.granted[key] = true
	s.balances[p.UserID] += p.Points
	return true, nil
}

func (s *MemoryPointsStore) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}
