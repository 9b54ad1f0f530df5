// Package geo resolves approximate client coordinates from a MaxMind MMDB
// city database.
//
// The capability is probed once at startup: a Resolver built without a
// database reports itself unavailable with a reason instead of failing every
// lookup, so the add-place flow can disable its "use my location" affordance
// up front.
package geo

import (
	"errors"
	"net/netip"

	"github.com/oschwald/maxminddb-golang/v2"
)

// ErrUnavailable indicates the resolver has no database to consult.
var ErrUnavailable = errors.New("geolocation unavailable")

// Location is an approximate position with its accuracy radius in meters.
type Location struct {
	Lat      float64
	Lng      float64
	Accuracy float64
}

// Resolver looks up approximate coordinates for client IPs.
type Resolver struct {
	reader *maxminddb.Reader
	reason string
}

// Open opens an MMDB city database. An empty path returns a resolver that is
// unavailable rather than an error; a configured-but-broken path errors.
func Open(dbPath string) (*Resolver, error) {
	if dbPath == "" {
		return &Resolver{reason: "no geolocation database configured"}, nil
	}
	r, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Resolver{reader: r}, nil
}

// Close releases the MMDB reader resources.
func (g *Resolver) Close() error {
	if g.reader == nil {
		return nil
	}
	return g.reader.Close()
}

// Available reports whether lookups can succeed, with a human-readable
// reason when they cannot.
func (g *Resolver) Available() (bool, string) {
	if g.reader == nil {
		return false, g.reason
	}
	return true, ""
}

// cityRecord is the minimal struct for MMDB city lookups. AccuracyRadius is
// in kilometers in the database.
type cityRecord struct {
	Location struct {
		Latitude       float64 `maxminddb:"latitude"`
		Longitude      float64 `maxminddb:"longitude"`
		AccuracyRadius uint16  `maxminddb:"accuracy_radius"`
	} `maxminddb:"location"`
}

// Locate returns the approximate location of the given client IP.
// Loopback, private, and unparseable addresses return ErrUnavailable; they
// have no meaningful database entry.
func (g *Resolver) Locate(ipStr string) (Location, error) {
	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return Location{}, ErrUnavailable
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return Location{}, ErrUnavailable
	}
	if g.reader == nil {
		return Location{}, ErrUnavailable
	}
	var rec cityRecord
	if err := g.reader.Lookup(addr).Decode(&rec); err != nil {
		return Location{}, ErrUnavailable
	}
	return Location{
		Lat:      rec.Location.Latitude,
		Lng:      rec.Location.Longitude,
		Accuracy: float64(rec.Location.AccuracyRadius) * 1000,
	}, nil
}
