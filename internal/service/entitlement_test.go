package service

import (
	"testing"
	"time"

	"resale-hub/internal/model"
)

func TestResolve(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)
	yes := true
	no := false

	cases := []struct {
		name      string
		role      model.UserRole
		vipUntil  *time.Time
		vipActive *bool
		wantAdmin bool
		wantVip   bool
		wantGold  bool
	}{
		{name: "free bare", role: model.UserRoleFree},
		{name: "free expired vip_until", role: model.UserRoleFree, vipUntil: &past},
		{name: "free future vip_until", role: model.UserRoleFree, vipUntil: &future, wantVip: true},
		{name: "free vip_active override", role: model.UserRoleFree, vipActive: &yes, wantVip: true},
		{name: "free vip_active false", role: model.UserRoleFree, vipActive: &no},
		{name: "free override beats expired until", role: model.UserRoleFree, vipUntil: &past, vipActive: &yes, wantVip: true},
		{name: "vip role alone", role: model.UserRoleVIP, wantVip: true},
		{name: "vip role expired until", role: model.UserRoleVIP, vipUntil: &past, wantVip: true},
		{name: "gold role", role: model.UserRoleGold, wantVip: true, wantGold: true},
		{name: "gold expired until stays gold", role: model.UserRoleGold, vipUntil: &past, wantVip: true, wantGold: true},
		{name: "admin bare", role: model.UserRoleAdmin, wantAdmin: true, wantVip: true},
		{name: "admin expired until", role: model.UserRoleAdmin, vipUntil: &past, wantAdmin: true, wantVip: true},
		{name: "admin vip_active false", role: model.UserRoleAdmin, vipActive: &no, wantAdmin: true, wantVip: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user := &model.User{
				Role:      tc.role,
				VIPUntil:  tc.vipUntil,
				VIPActive: tc.vipActive,
			}

			ent := Resolve(user, now)
			if ent.IsAdmin != tc.wantAdmin {
				t.Fatalf("IsAdmin = %v, want %v", ent.IsAdmin, tc.wantAdmin)
			}
			if ent.IsVip != tc.wantVip {
				t.Fatalf("IsVip = %v, want %v", ent.IsVip, tc.wantVip)
			}
			if ent.IsGold != tc.wantGold {
				t.Fatalf("IsGold = %v, want %v", ent.IsGold, tc.wantGold)
			}
			if ent.Role != tc.role {
				t.Fatalf("Role = %q, want %q", ent.Role, tc.role)
			}
		})
	}
}

func TestResolveNilUser(t *testing.T) {
	ent := Resolve(nil, time.Now().UTC())
	if ent.IsAdmin || ent.IsVip || ent.IsGold {
		t.Fatalf("nil user must resolve to no entitlement, got %+v", ent)
	}
	if ent.Role != model.UserRoleFree {
		t.Fatalf("nil user role = %q, want free", ent.Role)
	}
}

func TestResolveLazyExpiry(t *testing.T) {
	until := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	user := &model.User{Role: model.UserRoleFree, VIPUntil: &until}

	if ent := Resolve(user, until.Add(-time.Second)); !ent.IsVip {
		t.Fatal("expected vip one second before expiry")
	}
	if ent := Resolve(user, until); ent.IsVip {
		t.Fatal("expected free exactly at expiry")
	}
	if ent := Resolve(user, until.Add(time.Second)); ent.IsVip {
		t.Fatal("expected free one second after expiry")
	}
}
