package directory

import (
	"context"
	"errors"

	"washflow/database/repository"
	directoryRepo "washflow/database/repository/directory"
	"washflow/models"
	"washflow/utils"
)

// Directory answers the read-only ownership questions the order engine asks
// before it creates anything.
type Directory interface {
	ActiveDriver(ctx context.Context, driverID string) (*models.DriverProfile, error)
	OwnedVehicle(ctx context.Context, driverID, vehicleID string) (*models.VehicleSnapshot, error)
	ActiveProvider(ctx context.Context, providerID string) (*models.ProviderProfile, error)
	ProviderPackage(ctx context.Context, providerID, packageID string) (*models.PackageSnapshot, error)
}

type DefaultDirectory struct {
	Source directoryRepo.Source
}

func NewDirectory(src directoryRepo.Source) *DefaultDirectory {
	return &DefaultDirectory{Source: src}
}

func (d *DefaultDirectory) ActiveDriver(ctx context.Context, driverID string) (*models.DriverProfile, error) {
	p, err := d.Source.Driver(ctx, driverID)
	if err != nil {
		return nil, lookupError("driver", err)
	}
	if !p.Active {
		return nil, utils.NewPreconditionError("driver_inactive", "driver account is not active")
	}
	return p, nil
}

func (d *DefaultDirectory) OwnedVehicle(ctx context.Context, driverID, vehicleID string) (*models.VehicleSnapshot, error) {
	v, err := d.Source.Vehicle(ctx, vehicleID)
	if err != nil {
		return nil, lookupError("vehicle", err)
	}
	if v.DriverID != driverID {
		return nil, utils.NewForbiddenError("vehicle_not_owned", "vehicle does not belong to driver")
	}
	snap := v.Snapshot()
	return &snap, nil
}

func (d *DefaultDirectory) ActiveProvider(ctx context.Context, providerID string) (*models.ProviderProfile, error) {
	p, err := d.Source.Provider(ctx, providerID)
	if err != nil {
		return nil, lookupError("provider", err)
	}
	if !p.Active {
		return nil, utils.NewPreconditionError("provider_inactive", "provider is not accepting orders")
	}
	return p, nil
}

func (d *DefaultDirectory) ProviderPackage(ctx context.Context, providerID, packageID string) (*models.PackageSnapshot, error) {
	p, err := d.ActiveProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	pkg, ok := p.Package(packageID)
	if !ok {
		return nil, utils.NewNotFoundError("package_not_found", "provider does not offer package "+packageID)
	}
	if pkg.DurationMinutes <= 0 || pkg.BasePrice <= 0 {
		return nil, utils.NewValidationError("package_invalid", "package has no duration or price")
	}
	return &pkg, nil
}

func lookupError(what string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return utils.NewNotFoundError(what+"_not_found", what+" not found")
	}
	return utils.NewDependencyError("directory_unavailable", "failed to look up "+what, err)
}
