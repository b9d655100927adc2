package models

// DriverProfile is the read-only identity record of a driver.
type DriverProfile struct {
	ID       string    `bson:"id" json:"id"`
	Name     string    `bson:"name" json:"name"`
	Active   bool      `bson:"active" json:"active"`
	Location *GeoPoint `bson:"location,omitempty" json:"location,omitempty"`
}

// VehicleRecord is a registered vehicle owned by a driver.
type VehicleRecord struct {
	ID       string `bson:"id" json:"id"`
	DriverID string `bson:"driverId" json:"driverId"`
	Make     string `bson:"make" json:"make"`
	Model    string `bson:"model" json:"model"`
	Plate    string `bson:"plate" json:"plate"`
	Segment  string `bson:"segment" json:"segment"`
}

func (v VehicleRecord) Snapshot() VehicleSnapshot {
	return VehicleSnapshot{ID: v.ID, Make: v.Make, Model: v.Model, Plate: v.Plate, Segment: v.Segment}
}

// ProviderProfile is the read-only provider record, including its package catalogue.
type ProviderProfile struct {
	ID       string            `bson:"id" json:"id"`
	Name     string            `bson:"name" json:"name"`
	Active   bool              `bson:"active" json:"active"`
	Modes    []ServiceMode     `bson:"modes" json:"modes"`
	Location GeoPoint          `bson:"location" json:"location"`
	Packages []PackageSnapshot `bson:"packages" json:"packages"`
}

func (p *ProviderProfile) Supports(mode ServiceMode) bool {
	for _, m := range p.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

func (p *ProviderProfile) Package(id string) (PackageSnapshot, bool) {
	for _, pkg := range p.Packages {
		if pkg.ID == id {
			return pkg, true
		}
	}
	return PackageSnapshot{}, false
}
