// Command seed replaces the Mongo directory and lanes with generated demo data.
package main

import (
	"context"
	"flag"
	"math/rand"
	"time"

	"washflow/config"
	"washflow/database"
	laneRepo "washflow/database/repository/lane"
	"washflow/database/seed"
	"washflow/utils"

	"go.uber.org/zap"
)

func main() {
	providers := flag.Int("providers", 30, "number of providers to generate")
	drivers := flag.Int("drivers", 50, "number of drivers to generate")
	randSeed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer database.CloseDB(context.Background())

	db := database.Database()
	lanes := laneRepo.NewMongoLaneRepo(db)
	if ix, ok := lanes.(interface{ EnsureIndexes(context.Context) error }); ok {
		if err := ix.EnsureIndexes(ctx); err != nil {
			logger.Fatal("failed to ensure lane indexes", zap.Error(err))
		}
	}

	data := seed.Generate(rand.New(rand.NewSource(*randSeed)), *providers, *drivers)
	if err := seed.LoadMongo(ctx, db, lanes, data); err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}
	logger.Info("seeded demo data",
		zap.Int("providers", len(data.Providers)),
		zap.Int("lanes", len(data.Lanes)),
		zap.Int("drivers", len(data.Drivers)),
		zap.Int("vehicles", len(data.Vehicles)),
		zap.Int64("seed", *randSeed))
}
