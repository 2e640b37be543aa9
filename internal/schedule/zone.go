package schedule

import (
	"time"
)

// ZoneResolver turns an IANA zone name into a *time.Location. The concrete
// implementation is chosen once at the boundary; the domain only depends on
// this interface.
type ZoneResolver interface {
	Resolve(name string) (*time.Location, error)
}

type systemZones struct{}

// SystemZones resolves zone names through the platform tz database.
// An empty name resolves to UTC.
func SystemZones() ZoneResolver {
	return systemZones{}
}

func (systemZones) Resolve(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
