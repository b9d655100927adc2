package memstore

import (
	"context"
	"sync"

	"washflow/database/repository"
	directoryRepo "washflow/database/repository/directory"
	"washflow/models"
)

// Directory is a seedable in-memory directory source.
type Directory struct {
	mu        sync.RWMutex
	drivers   map[string]models.DriverProfile
	vehicles  map[string]models.VehicleRecord
	providers map[string]models.ProviderProfile
}

var _ directoryRepo.Source = (*Directory)(nil)

func NewDirectory() *Directory {
	return &Directory{
		drivers:   map[string]models.DriverProfile{},
		vehicles:  map[string]models.VehicleRecord{},
		providers: map[string]models.ProviderProfile{},
	}
}

func (d *Directory) PutDriver(p models.DriverProfile) {
	d.mu.Lock()
	d.drivers[p.ID] = p
	d.mu.Unlock()
}

func (d *Directory) PutVehicle(v models.VehicleRecord) {
	d.mu.Lock()
	d.vehicles[v.ID] = v
	d.mu.Unlock()
}

func (d *Directory) PutProvider(p models.ProviderProfile) {
	d.mu.Lock()
	d.providers[p.ID] = p
	d.mu.Unlock()
}

func (d *Directory) Driver(_ context.Context, id string) (*models.DriverProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (d *Directory) Vehicle(_ context.Context, id string) (*models.VehicleRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (d *Directory) Provider(_ context.Context, id string) (*models.ProviderProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(&p), nil
}
