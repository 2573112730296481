// Package directory exposes the read-query surface over the current range
// snapshot. Queries are pure reads: they dereference whichever snapshot is
// current at call time and never block on a refresh. The only synchronized
// operation is the pointer swap in Publish.
package directory

import (
	"sync/atomic"
	"time"

	"github.com/prefixd/prefixd/errs"
	"github.com/prefixd/prefixd/internal/index"
	"github.com/prefixd/prefixd/internal/netaddr"
)

// ServiceList is the payload of a ListServices query.
type ServiceList struct {
	Services    []string
	SyncToken   string
	LastUpdated time.Time
}

// RegionList is the payload of a ListRegions query.
type RegionList struct {
	Regions     []string
	SyncToken   string
	LastUpdated time.Time
}

// RangeSet is the payload of a GetAllServices query.
type RangeSet struct {
	Services    map[string]index.ServiceRanges
	SyncToken   string
	LastUpdated time.Time
}

// AddressMatches is the payload of a SearchByAddress query.
type AddressMatches struct {
	Address     string
	Matches     []index.RangeMatch
	SyncToken   string
	LastUpdated time.Time
}

// published pairs a snapshot with its publication time so both become
// visible in one atomic store.
type published struct {
	snapshot  *index.Snapshot
	updatedAt time.Time
}

// Directory holds the current immutable snapshot behind an atomically
// swappable reference. The zero value is usable and reports not loaded
// until the first Publish.
type Directory struct {
	current atomic.Pointer[published]
}

// New returns an empty, not-yet-loaded directory.
func New() *Directory {
	return &Directory{}
}

// Publish atomically replaces the current snapshot and its publication
// time. Readers in flight keep the snapshot reference they already hold.
func (d *Directory) Publish(snapshot *index.Snapshot) {
	if snapshot == nil {
		return
	}
	d.current.Store(&published{snapshot: snapshot, updatedAt: time.Now().UTC()})
}

// IsLoaded reports whether a first snapshot has been published. A loaded
// snapshot with zero entries still counts as loaded.
func (d *Directory) IsLoaded() bool {
	return d.current.Load() != nil
}

func (d *Directory) loaded() (*published, error) {
	cur := d.current.Load()
	if cur == nil {
		return nil, errs.New("directory", errs.CodeNotLoaded,
			errs.WithMessage("no snapshot published yet"))
	}
	return cur, nil
}

// ListServices returns the sorted service names of the current snapshot.
func (d *Directory) ListServices() (ServiceList, error) {
	cur, err := d.loaded()
	if err != nil {
		return ServiceList{}, err
	}
	return ServiceList{
		Services:    cur.snapshot.ServiceNames(),
		SyncToken:   cur.snapshot.SyncToken(),
		LastUpdated: cur.updatedAt,
	}, nil
}

// ListRegions returns the sorted region names of the current snapshot.
func (d *Directory) ListRegions() (RegionList, error) {
	cur, err := d.loaded()
	if err != nil {
		return RegionList{}, err
	}
	return RegionList{
		Regions:     cur.snapshot.Regions(),
		SyncToken:   cur.snapshot.SyncToken(),
		LastUpdated: cur.updatedAt,
	}, nil
}

// GetService returns the ranges of the named service, matched
// case-insensitively. A non-empty region restricts the result to prefixes
// tagged with that region; a known service with zero matches under the
// filter reports not_found, same as an unknown service.
func (d *Directory) GetService(name, region string) (index.ServiceRanges, error) {
	cur, err := d.loaded()
	if err != nil {
		return index.ServiceRanges{}, err
	}
	ranges, ok := cur.snapshot.Service(name, region)
	if !ok {
		return index.ServiceRanges{}, errs.New("directory", errs.CodeNotFound,
			errs.WithMessage("no ranges for service "+name))
	}
	return ranges, nil
}

// GetAllServices returns every service's ranges, optionally restricted by
// region. Services with no prefixes under the filter are omitted.
func (d *Directory) GetAllServices(region string) (RangeSet, error) {
	cur, err := d.loaded()
	if err != nil {
		return RangeSet{}, err
	}
	return RangeSet{
		Services:    cur.snapshot.AllServices(region),
		SyncToken:   cur.snapshot.SyncToken(),
		LastUpdated: cur.updatedAt,
	}, nil
}

// SearchByAddress returns every range containing the given address.
// Malformed address text surfaces to the caller; an address contained by
// no range yields an empty match list, not an error.
func (d *Directory) SearchByAddress(text string) (AddressMatches, error) {
	cur, err := d.loaded()
	if err != nil {
		return AddressMatches{}, err
	}
	addr, err := netaddr.ParseAddr(text)
	if err != nil {
		return AddressMatches{}, err
	}
	return AddressMatches{
		Address:     addr.String(),
		Matches:     cur.snapshot.FindContaining(addr),
		SyncToken:   cur.snapshot.SyncToken(),
		LastUpdated: cur.updatedAt,
	}, nil
}
