// Package httpserver exposes the read-only REST surface over the range
// directory. It is a thin adapter: every endpoint maps one directory query
// to JSON and one error code to an HTTP status.
package httpserver

import (
	"net/http"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/prefixd/prefixd/errs"
	"github.com/prefixd/prefixd/internal/directory"
	"github.com/prefixd/prefixd/internal/index"
	"github.com/prefixd/prefixd/internal/telemetry"
)

const (
	servicesPath        = "/v1/services"
	serviceDetailPrefix = servicesPath + "/"
	regionsPath         = "/v1/regions"
	rangesPath          = "/v1/ranges"
	searchPath          = "/v1/search"
	healthPath          = "/healthz"
)

type handlerFunc func(http.ResponseWriter, *http.Request)

type httpServer struct {
	dir     *directory.Directory
	metrics *telemetry.DirectoryMetrics
}

// Options tunes the adapter middleware.
type Options struct {
	RatePerSecond float64
	RateBurst     int
}

// NewHandler builds the HTTP handler for directory queries.
func NewHandler(dir *directory.Directory, metrics *telemetry.DirectoryMetrics, opts Options) http.Handler {
	server := &httpServer{dir: dir, metrics: metrics}
	mux := http.NewServeMux()

	mux.Handle(servicesPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listServices,
	}))
	mux.Handle(serviceDetailPrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getService,
	}))
	mux.Handle(regionsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listRegions,
	}))
	mux.Handle(rangesPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getAllServices,
	}))
	mux.Handle(searchPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.searchByAddress,
	}))
	mux.Handle(healthPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.health,
	}))

	handler := withCORS(mux)
	if opts.RatePerSecond > 0 {
		handler = withRateLimit(handler, rate.Limit(opts.RatePerSecond), opts.RateBurst)
	}
	return handler
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

type serviceRangesPayload struct {
	Name         string   `json:"name"`
	IPv4Prefixes []string `json:"ipv4_prefixes"`
	IPv6Prefixes []string `json:"ipv6_prefixes"`
	IPv4Count    int      `json:"ipv4_count"`
	IPv6Count    int      `json:"ipv6_count"`
}

func rangesPayload(ranges index.ServiceRanges) serviceRangesPayload {
	return serviceRangesPayload{
		Name:         ranges.Name,
		IPv4Prefixes: emptyIfNil(ranges.IPv4Prefixes),
		IPv6Prefixes: emptyIfNil(ranges.IPv6Prefixes),
		IPv4Count:    len(ranges.IPv4Prefixes),
		IPv6Count:    len(ranges.IPv6Prefixes),
	}
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func (s *httpServer) listServices(w http.ResponseWriter, r *http.Request) {
	list, err := s.dir.ListServices()
	if err != nil {
		s.writeFailure(w, r, "list_services", err)
		return
	}
	s.metrics.RecordQuery(r.Context(), "list_services", "ok")
	writeJSON(w, http.StatusOK, map[string]any{
		"services":     list.Services,
		"sync_token":   list.SyncToken,
		"last_updated": list.LastUpdated,
	})
}

func (s *httpServer) listRegions(w http.ResponseWriter, r *http.Request) {
	list, err := s.dir.ListRegions()
	if err != nil {
		s.writeFailure(w, r, "list_regions", err)
		return
	}
	s.metrics.RecordQuery(r.Context(), "list_regions", "ok")
	writeJSON(w, http.StatusOK, map[string]any{
		"regions":      list.Regions,
		"sync_token":   list.SyncToken,
		"last_updated": list.LastUpdated,
	})
}

func (s *httpServer) getService(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, serviceDetailPrefix), "/")
	if name == "" {
		writeError(w, http.StatusNotFound, "service name required")
		return
	}
	region := r.URL.Query().Get("region")
	ranges, err := s.dir.GetService(name, region)
	if err != nil {
		s.writeFailure(w, r, "get_service", err)
		return
	}
	s.metrics.RecordQuery(r.Context(), "get_service", "ok")
	writeJSON(w, http.StatusOK, rangesPayload(ranges))
}

func (s *httpServer) getAllServices(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	set, err := s.dir.GetAllServices(region)
	if err != nil {
		s.writeFailure(w, r, "get_all_services", err)
		return
	}
	services := make(map[string]serviceRangesPayload, len(set.Services))
	for name, ranges := range set.Services {
		services[name] = rangesPayload(ranges)
	}
	s.metrics.RecordQuery(r.Context(), "get_all_services", "ok")
	writeJSON(w, http.StatusOK, map[string]any{
		"services":     services,
		"sync_token":   set.SyncToken,
		"last_updated": set.LastUpdated,
	})
}

func (s *httpServer) searchByAddress(w http.ResponseWriter, r *http.Request) {
	addressText := r.URL.Query().Get("ip")
	if addressText == "" {
		writeError(w, http.StatusBadRequest, "query parameter ip required")
		return
	}
	result, err := s.dir.SearchByAddress(addressText)
	if err != nil {
		s.writeFailure(w, r, "search_by_address", err)
		return
	}
	matches := result.Matches
	if matches == nil {
		matches = []index.RangeMatch{}
	}
	s.metrics.RecordQuery(r.Context(), "search_by_address", "ok")
	writeJSON(w, http.StatusOK, map[string]any{
		"address":      result.Address,
		"found":        len(matches) > 0,
		"matches":      matches,
		"sync_token":   result.SyncToken,
		"last_updated": result.LastUpdated,
	})
}

func (s *httpServer) health(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{"status": "ok", "loaded": s.dir.IsLoaded()}
	if list, err := s.dir.ListServices(); err == nil {
		payload["sync_token"] = list.SyncToken
		payload["last_updated"] = list.LastUpdated
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *httpServer) writeFailure(w http.ResponseWriter, r *http.Request, operation string, err error) {
	code := errs.CodeOf(err)
	s.metrics.RecordQuery(r.Context(), operation, string(code))
	writeError(w, statusFor(code), err.Error())
}

func statusFor(code errs.Code) int {
	switch code {
	case errs.CodeNotLoaded:
		return http.StatusServiceUnavailable
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeMalformedAddress, errs.CodeMalformedCIDR, errs.CodeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func withRateLimit(handler http.Handler, limit rate.Limit, burst int) http.Handler {
	if burst <= 0 {
		burst = int(limit)
	}
	limiter := rate.NewLimiter(limit, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", time.Now().Add(time.Second).UTC().Format(http.TimeFormat))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		handler.ServeHTTP(w, r)
	})
}
