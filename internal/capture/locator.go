package capture

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// A Locator names a camera as "<driver>:<id>" or "<driver>:<id>/<facing>".
type Locator struct {
	Driver string
	ID     int
	Facing Facing
}

func (l Locator) String() string {
	return fmt.Sprintf("%s:%d/%s", l.Driver, l.ID, l.Facing)
}

func ParseLocator(s string) (Locator, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return Locator{}, errors.Errorf("invalid camera locator '%s'", s)
	}
	loc := Locator{Driver: parts[0]}

	path := parts[1]
	if i := strings.IndexByte(path, '/'); i >= 0 {
		switch path[i+1:] {
		case "front":
			loc.Facing = FacingFront
		case "back":
			loc.Facing = FacingBack
		default:
			return Locator{}, errors.Errorf("invalid camera facing in '%s'", s)
		}
		path = path[:i]
	}

	id, err := strconv.Atoi(path)
	if err != nil || id < 0 {
		return Locator{}, errors.Errorf("invalid camera id in '%s'", s)
	}
	loc.ID = id
	return loc, nil
}

var (
	drivers   = map[string]Driver{}
	driversMu sync.Mutex
)

// RegisterDriver makes a driver available under its name. Registering a name
// again replaces the previous driver.
func RegisterDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[d.Name()] = d
}

// LookupDriver finds a registered driver.
func LookupDriver(name string) (Driver, error) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if d, found := drivers[name]; found {
		return d, nil
	}

	var tags []string
	for t := range drivers {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	log.Debug("Registered camera drivers: %v", tags)
	return nil, errors.Errorf("camera driver '%s' not registered", name)
}

// OpenLocator opens the camera a locator string names.
func OpenLocator(spec string, opts Options) (*Session, error) {
	loc, err := ParseLocator(spec)
	if err != nil {
		return nil, err
	}
	d, err := LookupDriver(loc.Driver)
	if err != nil {
		return nil, err
	}
	return Open(d, loc.ID, opts)
}
