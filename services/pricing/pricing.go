package pricing

import (
	"context"
	"math"

	"washflow/models"
	"washflow/utils"

	"go.uber.org/zap"
)

// QuoteRequest carries everything the price depends on.
type QuoteRequest struct {
	ProviderID       string
	Package          models.PackageSnapshot
	Segment          string
	Mode             models.ServiceMode
	Date             string
	ProviderLocation models.GeoPoint
	DriverLocation   *models.GeoPoint
}

type PricingService interface {
	Quote(ctx context.Context, req QuoteRequest) (*models.PricingBreakdown, error)
}

// OccupancySource reports how loaded a provider is on a date.
type OccupancySource interface {
	OccupancyRate(ctx context.Context, providerID, date string) (*models.Occupancy, error)
}

var defaultSegmentMultipliers = map[string]float64{
	"hatchback": 1.0,
	"sedan":     1.1,
	"suv":       1.3,
	"truck":     1.5,
}

// DefaultPricingService prices a wash as base x segment x density, plus a
// distance fee for mobile visits.
type DefaultPricingService struct {
	Occupancy          OccupancySource
	SegmentMultipliers map[string]float64
	CalloutFee         int64 // flat fee for a mobile visit, minor units
	PerKmFee           int64
	Logger             *zap.Logger
}

func NewPricingService(occ OccupancySource, logger *zap.Logger) *DefaultPricingService {
	return &DefaultPricingService{
		Occupancy:          occ,
		SegmentMultipliers: defaultSegmentMultipliers,
		CalloutFee:         20000,
		PerKmFee:           5000,
		Logger:             utils.LoggerOrNop(logger),
	}
}

func (p *DefaultPricingService) Quote(ctx context.Context, req QuoteRequest) (*models.PricingBreakdown, error) {
	if req.Package.BasePrice <= 0 {
		return nil, utils.NewValidationError("package_price_invalid", "package has no base price")
	}
	seg, ok := p.SegmentMultipliers[req.Segment]
	if !ok {
		return nil, utils.NewValidationError("segment_unknown", "unknown vehicle segment "+req.Segment)
	}

	density := 1.0
	if p.Occupancy != nil {
		occ, err := p.Occupancy.OccupancyRate(ctx, req.ProviderID, req.Date)
		if err != nil {
			p.Logger.Warn("occupancy unavailable, pricing without surge", zap.String("providerId", req.ProviderID), zap.Error(err))
		} else {
			density = DensityCoefficient(occ.Rate)
		}
	}

	var distanceFee int64
	if req.Mode == models.ModeMobile {
		if req.DriverLocation == nil {
			return nil, utils.NewValidationError("location_required", "mobile orders need a service location")
		}
		km := HaversineKm(req.ProviderLocation, *req.DriverLocation)
		distanceFee = p.CalloutFee + int64(math.Round(km*float64(p.PerKmFee)))
	}

	base := float64(req.Package.BasePrice)
	final := int64(math.Round(base*seg*density)) + distanceFee
	return &models.PricingBreakdown{
		BasePrice:          req.Package.BasePrice,
		SegmentMultiplier:  seg,
		DensityCoefficient: density,
		DistanceFee:        distanceFee,
		FinalPrice:         final,
		Currency:           req.Package.Currency,
	}, nil
}

// DensityCoefficient surcharges busy days.
func DensityCoefficient(rate float64) float64 {
	switch {
	case rate > 0.8:
		return 1.2
	case rate > 0.6:
		return 1.1
	default:
		return 1.0
	}
}

// HaversineKm is the great-circle distance between two points.
func HaversineKm(a, b models.GeoPoint) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
