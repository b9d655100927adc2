package pricing

import (
	"context"
	"errors"
	"math"
	"testing"

	"washflow/models"
)

type fixedOccupancy struct {
	rate float64
	err  error
}

func (f fixedOccupancy) OccupancyRate(context.Context, string, string) (*models.Occupancy, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Occupancy{Rate: f.rate}, nil
}

func TestQuoteShop(t *testing.T) {
	t.Parallel()

	pkg := models.PackageSnapshot{ID: "basic", BasePrice: 10000, Currency: "KES"}
	cases := []struct {
		name    string
		segment string
		rate    float64
		want    int64
	}{
		{"quiet hatchback", "hatchback", 0.1, 10000},
		{"busy suv", "suv", 0.7, 14300},
		{"packed truck", "truck", 0.9, 18000},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := NewPricingService(fixedOccupancy{rate: tc.rate}, nil)
			q, err := svc.Quote(context.Background(), QuoteRequest{Package: pkg, Segment: tc.segment, Mode: models.ModeShop})
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if q.FinalPrice != tc.want {
				t.Fatalf("final = %d, want %d", q.FinalPrice, tc.want)
			}
		})
	}
}

func TestQuoteDegradesWithoutOccupancy(t *testing.T) {
	t.Parallel()
	svc := NewPricingService(fixedOccupancy{err: errors.New("down")}, nil)
	q, err := svc.Quote(context.Background(), QuoteRequest{
		Package: models.PackageSnapshot{BasePrice: 10000}, Segment: "sedan", Mode: models.ModeShop,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.DensityCoefficient != 1.0 || q.FinalPrice != 11000 {
		t.Fatalf("quote = %+v", q)
	}
}

func TestQuoteMobileAddsDistanceFee(t *testing.T) {
	t.Parallel()
	svc := NewPricingService(nil, nil)
	provider := models.GeoPoint{Lat: -1.2921, Lng: 36.8219}
	driver := models.GeoPoint{Lat: -1.2921, Lng: 36.9119}

	q, err := svc.Quote(context.Background(), QuoteRequest{
		Package: models.PackageSnapshot{BasePrice: 10000}, Segment: "hatchback", Mode: models.ModeMobile,
		ProviderLocation: provider, DriverLocation: &driver,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	km := HaversineKm(provider, driver)
	if math.Abs(km-10.0) > 0.1 {
		t.Fatalf("distance = %.2f km, want about 10", km)
	}
	if q.DistanceFee <= svc.CalloutFee || q.FinalPrice != 10000+q.DistanceFee {
		t.Fatalf("quote = %+v", q)
	}

	if _, err := svc.Quote(context.Background(), QuoteRequest{Package: models.PackageSnapshot{BasePrice: 1}, Segment: "sedan", Mode: models.ModeMobile}); err == nil {
		t.Fatal("mobile quote without location should fail")
	}
}
