package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deptrack/deptrack/internal/kv"
	"github.com/deptrack/deptrack/internal/models"
)

type stubPartnerRepo struct {
	rows  map[string]*models.PartnerConfig
	err   error
	calls int
}

func (r *stubPartnerRepo) GetByPartnerID(partnerID string) (*models.PartnerConfig, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.rows[partnerID], nil
}

func (r *stubPartnerRepo) ListActive() ([]models.PartnerConfig, error) {
	var out []models.PartnerConfig
	for _, row := range r.rows {
		if row.IsActive() {
			out = append(out, *row)
		}
	}
	return out, nil
}

func TestDomainAuthorized(t *testing.T) {
	cases := []struct {
		name      string
		whitelist []string
		domain    string
		want      bool
	}{
		{name: "exact", whitelist: []string{"vindstod.dk"}, domain: "vindstod.dk", want: true},
		{name: "exact_case_insensitive", whitelist: []string{"Vindstod.DK"}, domain: "VINDSTOD.dk", want: true},
		{name: "exact_mismatch", whitelist: []string{"vindstod.dk"}, domain: "other.dk", want: false},
		{name: "wildcard_subdomain", whitelist: []string{"*.vindstod.dk"}, domain: "app.vindstod.dk", want: true},
		{name: "wildcard_bare_suffix", whitelist: []string{"*.vindstod.dk"}, domain: "vindstod.dk", want: true},
		{name: "wildcard_needs_dot_boundary", whitelist: []string{"*.example.com"}, domain: "evilexample.com", want: false},
		{name: "wildcard_deep_subdomain", whitelist: []string{"*.example.com"}, domain: "a.b.example.com", want: true},
		{name: "empty_whitelist_allows_all", whitelist: nil, domain: "anything.io", want: true},
		{name: "empty_domain_rejected", whitelist: []string{"vindstod.dk"}, domain: "", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DomainAuthorized(tc.whitelist, tc.domain); got != tc.want {
				t.Fatalf("DomainAuthorized(%v, %q) want %v got %v", tc.whitelist, tc.domain, tc.want, got)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	repo := &stubPartnerRepo{rows: map[string]*models.PartnerConfig{
		"vindstod": {
			PartnerID:        "vindstod",
			DomainWhitelist:  models.StringList{"vindstod.dk", "*.vindstod.dk"},
			RateLimitPerHour: 1000,
			Status:           models.PartnerStatusActive,
		},
		"paused": {
			PartnerID: "paused",
			Status:    models.PartnerStatusDisabled,
		},
	}}
	svc := NewPartnerService(repo, kv.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	if _, err := svc.Authorize(ctx, "vindstod", "vindstod.dk"); err != nil {
		t.Fatalf("active partner with whitelisted domain should pass: %v", err)
	}

	var authErr *AuthorizationError
	if _, err := svc.Authorize(ctx, "vindstod", "evil.com"); !errors.As(err, &authErr) {
		t.Fatalf("non-whitelisted domain should fail authorization, got %v", err)
	}
	if _, err := svc.Authorize(ctx, "unknown", "vindstod.dk"); !errors.As(err, &authErr) {
		t.Fatalf("unknown partner should fail authorization, got %v", err)
	}
	if _, err := svc.Authorize(ctx, "paused", "vindstod.dk"); !errors.As(err, &authErr) {
		t.Fatalf("disabled partner should fail authorization, got %v", err)
	}
}

func TestAuthorizeFailsClosedOnLookupError(t *testing.T) {
	repo := &stubPartnerRepo{err: errors.New("db down")}
	svc := NewPartnerService(repo, nil, time.Minute)

	var authErr *AuthorizationError
	if _, err := svc.Authorize(context.Background(), "vindstod", "vindstod.dk"); !errors.As(err, &authErr) {
		t.Fatalf("lookup failure must reject the request, got %v", err)
	}
}

func TestGetPartnerUsesCache(t *testing.T) {
	repo := &stubPartnerRepo{rows: map[string]*models.PartnerConfig{
		"vindstod": {
			PartnerID: "vindstod",
			Status:    models.PartnerStatusActive,
		},
	}}
	svc := NewPartnerService(repo, kv.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		partner, err := svc.GetPartner(ctx, "vindstod")
		if err != nil {
			t.Fatalf("get partner failed: %v", err)
		}
		if partner == nil || partner.PartnerID != "vindstod" {
			t.Fatalf("unexpected snapshot: %+v", partner)
		}
	}
	if repo.calls != 1 {
		t.Fatalf("repository should be hit once, got %d", repo.calls)
	}
}

func TestGetPartnerUnknown(t *testing.T) {
	svc := NewPartnerService(&stubPartnerRepo{rows: map[string]*models.PartnerConfig{}}, nil, time.Minute)
	partner, err := svc.GetPartner(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unknown partner should not error: %v", err)
	}
	if partner != nil {
		t.Fatalf("unknown partner should return nil snapshot, got %+v", partner)
	}
}
