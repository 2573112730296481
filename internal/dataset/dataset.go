// Package dataset decodes the upstream IP range document into normalized
// prefix records. Entries that fail validation are dropped and counted;
// only a document that is unusable as a whole fails the parse.
package dataset

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/prefixd/prefixd/errs"
	"github.com/prefixd/prefixd/internal/netaddr"
)

// PrefixRecord is one normalized entry of the upstream dataset.
// Immutable once parsed.
type PrefixRecord struct {
	CIDR               string
	Prefix             netaddr.Prefix
	Family             netaddr.Family
	Service            string
	Region             string
	NetworkBorderGroup string
}

// Document is the validated result of one parse: the upstream sync token,
// the ordered valid records, and the count of entries dropped as malformed.
type Document struct {
	SyncToken  string
	CreateDate string
	Records    []PrefixRecord
	Dropped    int
}

type rawDocument struct {
	SyncToken    string      `json:"syncToken"`
	CreateDate   string      `json:"createDate"`
	Prefixes     []rawPrefix `json:"prefixes"`
	IPv6Prefixes []rawPrefix `json:"ipv6_prefixes"`
}

type rawPrefix struct {
	IPPrefix           string `json:"ip_prefix"`
	IPv6Prefix         string `json:"ipv6_prefix"`
	Region             string `json:"region"`
	Service            string `json:"service"`
	NetworkBorderGroup string `json:"network_border_group"`
}

// Parse validates and normalizes the raw upstream document. It fails with
// a dataset_unparsable envelope when the payload is not valid JSON or
// carries neither prefix list; individual malformed entries are dropped
// and reported through Document.Dropped.
func Parse(raw []byte) (Document, error) {
	var doc rawDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, errs.New("dataset", errs.CodeDatasetUnparsable,
			errs.WithMessage("document is not valid JSON"), errs.WithCause(err))
	}
	if doc.Prefixes == nil && doc.IPv6Prefixes == nil {
		return Document{}, errs.New("dataset", errs.CodeDatasetUnparsable,
			errs.WithMessage("document carries no prefix lists"))
	}

	out := Document{
		SyncToken:  doc.SyncToken,
		CreateDate: doc.CreateDate,
		Records:    make([]PrefixRecord, 0, len(doc.Prefixes)+len(doc.IPv6Prefixes)),
	}
	for _, entry := range doc.Prefixes {
		out.appendEntry(entry.IPPrefix, entry, netaddr.FamilyIPv4)
	}
	for _, entry := range doc.IPv6Prefixes {
		out.appendEntry(entry.IPv6Prefix, entry, netaddr.FamilyIPv6)
	}
	return out, nil
}

func (d *Document) appendEntry(cidr string, entry rawPrefix, family netaddr.Family) {
	service := strings.TrimSpace(entry.Service)
	region := strings.TrimSpace(entry.Region)
	if cidr == "" || service == "" || region == "" {
		d.Dropped++
		return
	}
	prefix, err := netaddr.ParseCIDR(cidr)
	if err != nil || prefix.Family() != family {
		d.Dropped++
		return
	}
	d.Records = append(d.Records, PrefixRecord{
		CIDR:               cidr,
		Prefix:             prefix,
		Family:             family,
		Service:            service,
		Region:             region,
		NetworkBorderGroup: strings.TrimSpace(entry.NetworkBorderGroup),
	})
}
