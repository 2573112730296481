package directory

import (
	"reflect"
	"sync"
	"testing"

	"github.com/prefixd/prefixd/errs"
	"github.com/prefixd/prefixd/internal/dataset"
	"github.com/prefixd/prefixd/internal/index"
	"github.com/prefixd/prefixd/internal/netaddr"
)

func record(t *testing.T, cidr, service, region string) dataset.PrefixRecord {
	t.Helper()
	prefix, err := netaddr.ParseCIDR(cidr)
	if err != nil {
		t.Fatalf("ParseCIDR(%q) error = %v", cidr, err)
	}
	return dataset.PrefixRecord{
		CIDR:               cidr,
		Prefix:             prefix,
		Family:             prefix.Family(),
		Service:            service,
		Region:             region,
		NetworkBorderGroup: region,
	}
}

func fixtureSnapshot(t *testing.T) *index.Snapshot {
	t.Helper()
	return index.Build("token-1", []dataset.PrefixRecord{
		record(t, "1.2.3.0/24", "EC2", "us-east-1"),
		record(t, "1.2.4.0/24", "EC2", "us-west-2"),
	})
}

func TestQueriesBeforeFirstPublishReportNotLoaded(t *testing.T) {
	dir := New()

	if dir.IsLoaded() {
		t.Error("fresh directory should not report loaded")
	}
	if _, err := dir.ListServices(); !errs.Is(err, errs.CodeNotLoaded) {
		t.Errorf("ListServices error = %v, want not_loaded", err)
	}
	if _, err := dir.ListRegions(); !errs.Is(err, errs.CodeNotLoaded) {
		t.Errorf("ListRegions error = %v, want not_loaded", err)
	}
	if _, err := dir.GetService("ec2", ""); !errs.Is(err, errs.CodeNotLoaded) {
		t.Errorf("GetService error = %v, want not_loaded", err)
	}
	if _, err := dir.GetAllServices(""); !errs.Is(err, errs.CodeNotLoaded) {
		t.Errorf("GetAllServices error = %v, want not_loaded", err)
	}
	if _, err := dir.SearchByAddress("1.2.3.4"); !errs.Is(err, errs.CodeNotLoaded) {
		t.Errorf("SearchByAddress error = %v, want not_loaded", err)
	}
}

func TestEmptySnapshotIsLoadedNotMissing(t *testing.T) {
	dir := New()
	dir.Publish(index.Build("empty", nil))

	if !dir.IsLoaded() {
		t.Fatal("directory with an empty snapshot should report loaded")
	}
	list, err := dir.ListServices()
	if err != nil {
		t.Fatalf("ListServices error = %v", err)
	}
	if len(list.Services) != 0 {
		t.Errorf("Services = %v, want empty", list.Services)
	}
	search, err := dir.SearchByAddress("1.2.3.4")
	if err != nil {
		t.Fatalf("SearchByAddress error = %v", err)
	}
	if len(search.Matches) != 0 {
		t.Errorf("Matches = %v, want none", search.Matches)
	}
}

func TestGetService(t *testing.T) {
	dir := New()
	dir.Publish(fixtureSnapshot(t))

	ranges, err := dir.GetService("ec2", "")
	if err != nil {
		t.Fatalf("GetService error = %v", err)
	}
	want := []string{"1.2.3.0/24", "1.2.4.0/24"}
	if !reflect.DeepEqual(ranges.IPv4Prefixes, want) {
		t.Errorf("IPv4Prefixes = %v, want %v", ranges.IPv4Prefixes, want)
	}

	filtered, err := dir.GetService("ec2", "us-east-1")
	if err != nil {
		t.Fatalf("GetService(region) error = %v", err)
	}
	if !reflect.DeepEqual(filtered.IPv4Prefixes, []string{"1.2.3.0/24"}) {
		t.Errorf("filtered IPv4Prefixes = %v, want [1.2.3.0/24]", filtered.IPv4Prefixes)
	}

	if _, err := dir.GetService("lambda", ""); !errs.Is(err, errs.CodeNotFound) {
		t.Errorf("unknown service error = %v, want not_found", err)
	}
	if _, err := dir.GetService("ec2", "eu-west-1"); !errs.Is(err, errs.CodeNotFound) {
		t.Errorf("empty region filter error = %v, want not_found", err)
	}
}

func TestSearchByAddress(t *testing.T) {
	dir := New()
	dir.Publish(fixtureSnapshot(t))

	result, err := dir.SearchByAddress("1.2.3.5")
	if err != nil {
		t.Fatalf("SearchByAddress error = %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("Matches = %v, want one", result.Matches)
	}
	m := result.Matches[0]
	if m.Service != "EC2" || m.Region != "us-east-1" || m.Prefix != "1.2.3.0/24" {
		t.Errorf("unexpected match: %+v", m)
	}

	empty, err := dir.SearchByAddress("9.9.9.9")
	if err != nil {
		t.Fatalf("SearchByAddress(miss) error = %v", err)
	}
	if len(empty.Matches) != 0 {
		t.Errorf("Matches = %v, want none", empty.Matches)
	}

	if _, err := dir.SearchByAddress("not-an-ip"); !errs.Is(err, errs.CodeMalformedAddress) {
		t.Errorf("malformed input error = %v, want malformed_address", err)
	}
}

func TestPublishSupersedesSnapshot(t *testing.T) {
	dir := New()
	dir.Publish(fixtureSnapshot(t))

	replacement := index.Build("token-2", []dataset.PrefixRecord{
		record(t, "9.9.9.0/24", "S3", "eu-west-1"),
	})
	dir.Publish(replacement)

	list, err := dir.ListServices()
	if err != nil {
		t.Fatalf("ListServices error = %v", err)
	}
	if !reflect.DeepEqual(list.Services, []string{"S3"}) {
		t.Errorf("Services = %v, want [S3]", list.Services)
	}
	if list.SyncToken != "token-2" {
		t.Errorf("SyncToken = %q, want token-2", list.SyncToken)
	}
}

func TestPublishIdempotentContent(t *testing.T) {
	dir := New()
	dir.Publish(fixtureSnapshot(t))
	first, err := dir.GetAllServices("")
	if err != nil {
		t.Fatalf("GetAllServices error = %v", err)
	}

	dir.Publish(fixtureSnapshot(t))
	second, err := dir.GetAllServices("")
	if err != nil {
		t.Fatalf("GetAllServices error = %v", err)
	}

	if !reflect.DeepEqual(first.Services, second.Services) {
		t.Errorf("republish from identical input changed content:\n%v\n%v", first.Services, second.Services)
	}
}

func TestConcurrentReadsDuringPublish(t *testing.T) {
	dir := New()
	dir.Publish(fixtureSnapshot(t))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				result, err := dir.SearchByAddress("1.2.3.5")
				if err != nil {
					t.Errorf("SearchByAddress error = %v", err)
					return
				}
				// Either snapshot generation is fine; a torn result is not.
				if len(result.Matches) != 1 {
					t.Errorf("Matches = %v, want exactly one", result.Matches)
					return
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		dir.Publish(fixtureSnapshot(t))
	}
	close(stop)
	wg.Wait()
}
