package laneRepo

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

type mongoLaneRepo struct {
	lanes *mongo.Collection
	days  *mongo.Collection
}

// NewMongoLaneRepo uses the "lanes" and "lane_days" collections of db.
func NewMongoLaneRepo(db *mongo.Database) LaneRepository {
	return &mongoLaneRepo{
		lanes: db.Collection("lanes"),
		days:  db.Collection("lane_days"),
	}
}

func (r *mongoLaneRepo) Create(ctx context.Context, lane *models.Lane) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.lanes.InsertOne(ctx, lane); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *mongoLaneRepo) GetByID(ctx context.Context, laneID string) (*models.Lane, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var lane models.Lane
	if err := r.lanes.FindOne(ctx, bson.M{"id": laneID}).Decode(&lane); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &lane, nil
}

func (r *mongoLaneRepo) ListByProvider(ctx context.Context, providerID string) ([]models.Lane, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := r.lanes.Find(ctx, bson.M{"providerId": providerID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var lanes []models.Lane
	if err := cursor.All(ctx, &lanes); err != nil {
		return nil, err
	}
	return lanes, nil
}

func (r *mongoLaneRepo) GetDay(ctx context.Context, laneID, date string) (*models.LaneDay, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var day models.LaneDay
	err := r.days.FindOne(ctx, bson.M{"laneId": laneID, "date": date}).Decode(&day)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &models.LaneDay{LaneID: laneID, Date: date}, nil
	}
	if err != nil {
		return nil, err
	}
	return &day, nil
}

func (r *mongoLaneRepo) InsertSlotIfFree(ctx context.Context, laneID, providerID, date string, slot models.Slot) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Make sure the day document exists so the conditional update below has
	// something to match. A concurrent upsert losing the unique index race is fine.
	_, err := r.days.UpdateOne(ctx,
		bson.M{"laneId": laneID, "date": date},
		bson.M{"$setOnInsert": bson.M{
			"laneId":     laneID,
			"providerId": providerID,
			"date":       date,
			"slots":      bson.A{},
			"version":    0,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return err
	}

	filter := bson.M{
		"laneId": laneID,
		"date":   date,
		"slots": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"status": bson.M{"$ne": models.SlotAvailable},
			"start":  bson.M{"$lt": slot.End},
			"end":    bson.M{"$gt": slot.Start},
		}}},
	}
	update := bson.M{
		"$push": bson.M{"slots": slot},
		"$inc":  bson.M{"version": 1},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := r.days.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrSlotTaken
	}
	return nil
}

func (r *mongoLaneRepo) RemoveSlot(ctx context.Context, laneID, date string, start int, orderID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	match := bson.M{"start": start, "orderId": orderID}
	if orderID == "" {
		match["status"] = models.SlotBlocked
	}
	res, err := r.days.UpdateOne(ctx,
		bson.M{"laneId": laneID, "date": date, "slots": bson.M{"$elemMatch": match}},
		bson.M{
			"$pull": bson.M{"slots": match},
			"$inc":  bson.M{"version": 1},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *mongoLaneRepo) SetSlotStatus(ctx context.Context, laneID, date string, start int, orderID string, status models.SlotStatus) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.days.UpdateOne(ctx,
		bson.M{"laneId": laneID, "date": date, "slots": bson.M{"$elemMatch": bson.M{"start": start, "orderId": orderID}}},
		bson.M{
			"$set": bson.M{"slots.$.status": status, "updatedAt": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
