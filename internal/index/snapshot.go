// Package index builds immutable, queryable snapshots of the range dataset.
// A snapshot bundles three views of the same record list built in one pass:
// the per-service prefix lists, the region set, and the per-family
// membership tries. Snapshots are never mutated after Build.
package index

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prefixd/prefixd/internal/dataset"
	"github.com/prefixd/prefixd/internal/netaddr"
)

// ServiceRanges is the query-facing view of one service's address blocks.
type ServiceRanges struct {
	Name         string
	IPv4Prefixes []string
	IPv6Prefixes []string
}

// RangeMatch describes one prefix containing a searched address.
type RangeMatch struct {
	Service            string `json:"service"`
	Region             string `json:"region"`
	Prefix             string `json:"prefix"`
	NetworkBorderGroup string `json:"network_border_group"`
}

// Snapshot is an immutable point-in-time view of the range directory.
type Snapshot struct {
	id        string
	syncToken string
	createdAt time.Time

	// records is the deduplicated source list; every other view indexes
	// into it.
	records []dataset.PrefixRecord

	services     map[string]*serviceEntry
	serviceNames []string
	regions      []string

	v4 *trie
	v6 *trie
}

// serviceEntry keys prefixes under the case-normalized service name while
// preserving the first-seen display casing.
type serviceEntry struct {
	display string
	ipv4    []string
	ipv6    []string
	records []int
}

// Build constructs a snapshot from the ordered record sequence. It always
// succeeds: an empty input yields a valid empty snapshot. Duplicate records
// (identical cidr+service+region) collapse; within a service each prefix
// string appears once, in first-seen order. Service grouping is
// case-insensitive with the first casing seen used for display.
func Build(syncToken string, records []dataset.PrefixRecord) *Snapshot {
	snap := &Snapshot{
		id:        uuid.NewString(),
		syncToken: syncToken,
		createdAt: time.Now().UTC(),
		services:  make(map[string]*serviceEntry),
		v4:        newTrie(),
		v6:        newTrie(),
	}

	seenRecord := make(map[string]struct{}, len(records))
	seenPrefix := make(map[string]struct{}, len(records))
	regionSet := make(map[string]struct{})

	for _, record := range records {
		serviceKey := normalizeKey(record.Service)
		recordKey := record.CIDR + "|" + serviceKey + "|" + normalizeKey(record.Region)
		if _, dup := seenRecord[recordKey]; dup {
			continue
		}
		seenRecord[recordKey] = struct{}{}

		idx := len(snap.records)
		snap.records = append(snap.records, record)

		entry, ok := snap.services[serviceKey]
		if !ok {
			entry = &serviceEntry{display: record.Service}
			snap.services[serviceKey] = entry
		}
		entry.records = append(entry.records, idx)

		prefixKey := serviceKey + "|" + record.CIDR
		if _, dup := seenPrefix[prefixKey]; !dup {
			seenPrefix[prefixKey] = struct{}{}
			if record.Family == netaddr.FamilyIPv4 {
				entry.ipv4 = append(entry.ipv4, record.CIDR)
			} else {
				entry.ipv6 = append(entry.ipv6, record.CIDR)
			}
		}

		regionSet[record.Region] = struct{}{}

		if record.Family == netaddr.FamilyIPv4 {
			snap.v4.insert(record.Prefix, idx)
		} else {
			snap.v6.insert(record.Prefix, idx)
		}
	}

	snap.serviceNames = make([]string, 0, len(snap.services))
	for _, entry := range snap.services {
		snap.serviceNames = append(snap.serviceNames, entry.display)
	}
	sort.Strings(snap.serviceNames)

	snap.regions = make([]string, 0, len(regionSet))
	for region := range regionSet {
		snap.regions = append(snap.regions, region)
	}
	sort.Strings(snap.regions)

	return snap
}

func normalizeKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// ID returns the build identifier used for log and metric correlation.
func (s *Snapshot) ID() string { return s.id }

// SyncToken returns the upstream sync token the snapshot was built from.
func (s *Snapshot) SyncToken() string { return s.syncToken }

// CreatedAt returns the build timestamp.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// PrefixCount returns the number of records held by the snapshot.
func (s *Snapshot) PrefixCount() int { return len(s.records) }

// ServiceNames returns the sorted display names of all services.
func (s *Snapshot) ServiceNames() []string {
	out := make([]string, len(s.serviceNames))
	copy(out, s.serviceNames)
	return out
}

// Regions returns the sorted distinct region names across both families.
func (s *Snapshot) Regions() []string {
	out := make([]string, len(s.regions))
	copy(out, s.regions)
	return out
}

// Service returns the merged ranges for the named service. The name match
// is case-insensitive. An optional region restricts the result to prefixes
// whose source record's region case-insensitively equals it; ok is false
// when the service is unknown or nothing matches the region filter.
func (s *Snapshot) Service(name, region string) (ServiceRanges, bool) {
	entry, ok := s.services[normalizeKey(name)]
	if !ok {
		return ServiceRanges{}, false
	}
	if region == "" {
		return ServiceRanges{
			Name:         entry.display,
			IPv4Prefixes: append([]string(nil), entry.ipv4...),
			IPv6Prefixes: append([]string(nil), entry.ipv6...),
		}, true
	}

	regionKey := normalizeKey(region)
	ranges := ServiceRanges{Name: entry.display}
	seen := make(map[string]struct{})
	for _, idx := range entry.records {
		record := s.records[idx]
		if normalizeKey(record.Region) != regionKey {
			continue
		}
		if _, dup := seen[record.CIDR]; dup {
			continue
		}
		seen[record.CIDR] = struct{}{}
		if record.Family == netaddr.FamilyIPv4 {
			ranges.IPv4Prefixes = append(ranges.IPv4Prefixes, record.CIDR)
		} else {
			ranges.IPv6Prefixes = append(ranges.IPv6Prefixes, record.CIDR)
		}
	}
	if len(ranges.IPv4Prefixes) == 0 && len(ranges.IPv6Prefixes) == 0 {
		return ServiceRanges{}, false
	}
	return ranges, true
}

// AllServices returns every service's ranges, optionally restricted by
// region. Services with zero matches under a region filter are omitted.
func (s *Snapshot) AllServices(region string) map[string]ServiceRanges {
	out := make(map[string]ServiceRanges, len(s.services))
	for _, entry := range s.services {
		ranges, ok := s.Service(entry.display, region)
		if !ok {
			continue
		}
		out[entry.display] = ranges
	}
	return out
}

// FindContaining returns every record whose block contains addr. The order
// is fixed for a given snapshot: shortest prefix first, insertion order
// within equal lengths.
func (s *Snapshot) FindContaining(addr netaddr.Addr) []RangeMatch {
	membership := s.v4
	if addr.Family() == netaddr.FamilyIPv6 {
		membership = s.v6
	}
	indices := membership.find(addr)
	out := make([]RangeMatch, 0, len(indices))
	for _, idx := range indices {
		record := s.records[idx]
		out = append(out, RangeMatch{
			Service:            record.Service,
			Region:             record.Region,
			Prefix:             record.CIDR,
			NetworkBorderGroup: record.NetworkBorderGroup,
		})
	}
	return out
}
