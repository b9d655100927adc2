// Package seed generates demo drivers, vehicles, providers and lanes around a
// fixed city centre and loads them into Mongo or the in-memory stores.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	laneRepo "washflow/database/repository/lane"
	"washflow/database/repository/memstore"
	"washflow/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Nairobi CBD.
var centre = models.GeoPoint{Lat: -1.2864, Lng: 36.8172}

type Data struct {
	Drivers   []models.DriverProfile
	Vehicles  []models.VehicleRecord
	Providers []models.ProviderProfile
	Lanes     []models.Lane
}

var segments = []string{"hatchback", "sedan", "suv", "truck"}

var catalogue = []models.PackageSnapshot{
	{
		ID: "basic", Name: "Exterior wash", Tier: "basic", BasePrice: 50000, Currency: "KES", DurationMinutes: 30,
		Steps: []models.PackageStep{
			{Name: "pre-rinse"},
			{Name: "foam", RequiresPhoto: true},
			{Name: "rinse and dry", RequiresPhoto: true},
		},
		QAChecklist:      []string{"exterior", "wheels"},
		RequiredQAPhotos: 2,
	},
	{
		ID: "premium", Name: "Full valet", Tier: "premium", BasePrice: 120000, Currency: "KES", DurationMinutes: 60,
		Steps: []models.PackageStep{
			{Name: "pre-rinse"},
			{Name: "foam", RequiresPhoto: true},
			{Name: "interior vacuum", RequiresPhoto: true},
			{Name: "dashboard polish", Optional: true},
			{Name: "rinse and dry", RequiresPhoto: true},
		},
		QAChecklist:      []string{"exterior", "wheels", "interior", "windows"},
		RequiredQAPhotos: 4,
	},
	{
		ID: "deluxe", Name: "Detail and wax", Tier: "deluxe", BasePrice: 250000, Currency: "KES", DurationMinutes: 120,
		Steps: []models.PackageStep{
			{Name: "pre-rinse"},
			{Name: "clay bar", RequiresPhoto: true},
			{Name: "foam", RequiresPhoto: true},
			{Name: "interior shampoo", RequiresPhoto: true, RequiresNotes: true},
			{Name: "wax", RequiresPhoto: true},
			{Name: "tyre shine", Optional: true},
		},
		QAChecklist:      []string{"exterior", "wheels", "interior", "windows", "paint"},
		RequiredQAPhotos: 5,
	},
}

func weekHours() map[string]models.WorkingDay {
	hours := map[string]models.WorkingDay{}
	for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		hours[d] = models.WorkingDay{Open: 7 * 60, Close: 19 * 60, Breaks: []models.Break{{Start: 13 * 60, End: 14 * 60}}}
	}
	hours["saturday"] = models.WorkingDay{Open: 8 * 60, Close: 16 * 60}
	hours["sunday"] = models.WorkingDay{Closed: true}
	return hours
}

// Generate builds providers spread linearly from maxKm down to 0.1km from the
// centre, each with one to three lanes, plus drivers with one or two vehicles.
func Generate(rng *rand.Rand, providers, drivers int) Data {
	var data Data
	const maxKm, minKm = 8.0, 0.1
	spacing := 0.0
	if providers > 1 {
		spacing = (maxKm - minKm) / float64(providers-1)
	}

	for i := 0; i < providers; i++ {
		distanceKm := maxKm - spacing*float64(i)
		angle := rng.Float64() * 2 * math.Pi
		// Roughly 1km is 0.009 degrees near the equator.
		loc := models.GeoPoint{
			Lat: centre.Lat + distanceKm*0.009*math.Sin(angle),
			Lng: centre.Lng + distanceKm*0.009*math.Cos(angle),
		}

		modes := []models.ServiceMode{models.ModeShop}
		if i%3 == 0 {
			modes = append(modes, models.ModeMobile)
		}
		p := models.ProviderProfile{
			ID:       fmt.Sprintf("prov-%03d", i+1),
			Name:     fmt.Sprintf("Wash Bay %d", i+1),
			Active:   true,
			Modes:    modes,
			Location: loc,
			Packages: catalogue[:1+rng.Intn(len(catalogue))],
		}
		data.Providers = append(data.Providers, p)

		for l := 0; l < 1+rng.Intn(3); l++ {
			data.Lanes = append(data.Lanes, models.Lane{
				ID:         fmt.Sprintf("%s-lane-%d", p.ID, l+1),
				ProviderID: p.ID,
				Name:       fmt.Sprintf("Bay %d", l+1),
				Capacity: models.LaneCapacity{
					ParallelJobs:           1,
					AverageDurationMinutes: 45,
					BufferMinutes:          5 + 5*rng.Intn(2),
				},
				Equipment: models.LaneEquipment{
					PressureWasher: true,
					FoamCannon:     rng.Intn(2) == 0,
					Vacuum:         true,
					Dryer:          rng.Intn(2) == 0,
					WaterRecycling: rng.Intn(4) == 0,
				},
				WorkingHours: weekHours(),
				Active:       true,
			})
		}
	}

	for i := 0; i < drivers; i++ {
		d := models.DriverProfile{ID: fmt.Sprintf("drv-%03d", i+1), Name: fmt.Sprintf("Driver %d", i+1), Active: true}
		data.Drivers = append(data.Drivers, d)
		for v := 0; v < 1+rng.Intn(2); v++ {
			data.Vehicles = append(data.Vehicles, models.VehicleRecord{
				ID:       fmt.Sprintf("%s-veh-%d", d.ID, v+1),
				DriverID: d.ID,
				Make:     "Toyota",
				Model:    "Fielder",
				Plate:    fmt.Sprintf("KD%c %03d%c", 'A'+rune(rng.Intn(26)), rng.Intn(1000), 'A'+rune(rng.Intn(26))),
				Segment:  segments[rng.Intn(len(segments))],
			})
		}
	}
	return data
}

// LoadMongo replaces the directory collections and the lanes with data.
func LoadMongo(ctx context.Context, db *mongo.Database, lanes laneRepo.LaneRepository, data Data) error {
	for _, name := range []string{"drivers", "vehicles", "providers", "lanes", "lane_days"} {
		if _, err := db.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("clear %s: %w", name, err)
		}
	}
	if err := insertAll(ctx, db.Collection("drivers"), data.Drivers); err != nil {
		return err
	}
	if err := insertAll(ctx, db.Collection("vehicles"), data.Vehicles); err != nil {
		return err
	}
	if err := insertAll(ctx, db.Collection("providers"), data.Providers); err != nil {
		return err
	}
	for i := range data.Lanes {
		if err := lanes.Create(ctx, &data.Lanes[i]); err != nil {
			return fmt.Errorf("insert lane %s: %w", data.Lanes[i].ID, err)
		}
	}
	return nil
}

func insertAll[T any](ctx context.Context, coll *mongo.Collection, items []T) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]interface{}, len(items))
	for i := range items {
		docs[i] = items[i]
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert into %s: %w", coll.Name(), err)
	}
	return nil
}

// LoadMemory fills the in-memory directory and lane store.
func LoadMemory(ctx context.Context, dir *memstore.Directory, lanes *memstore.LaneStore, data Data) error {
	for _, d := range data.Drivers {
		dir.PutDriver(d)
	}
	for _, v := range data.Vehicles {
		dir.PutVehicle(v)
	}
	for _, p := range data.Providers {
		dir.PutProvider(p)
	}
	for i := range data.Lanes {
		if err := lanes.Create(ctx, &data.Lanes[i]); err != nil {
			return fmt.Errorf("insert lane %s: %w", data.Lanes[i].ID, err)
		}
	}
	return nil
}
