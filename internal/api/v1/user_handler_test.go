package v1

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestAdminUsers_ListFiltersByRole(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 8001, "admin", nil)
	seedAccount(t, ts.pool, 8002, "free", nil)
	seedAccount(t, ts.pool, 8003, "vip", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")

	resp := performJSONRequest(t, ts.router, http.MethodGet, "/admin/users?role=vip", nil, adminToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("list status = %d, body %s", resp.Code, resp.Body.String())
	}

	var page struct {
		Items []struct {
			TelegramID int64  `json:"telegram_id"`
			Role       string `json:"role"`
		} `json:"items"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if page.Pagination.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("expected one vip account, got %+v", page)
	}
	if page.Items[0].TelegramID != 8003 {
		t.Fatalf("wrong account in filter result: %+v", page.Items[0])
	}
}

func TestAdminUsers_UpdateRoleAndDays(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 8101, "admin", nil)
	targetID := seedAccount(t, ts.pool, 8102, "free", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")

	resp := performJSONRequest(t, ts.router, http.MethodPatch, "/admin/users/"+targetID.String(),
		map[string]any{"role": "vip", "add_days": 14, "tag": "promo"}, adminToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", resp.Code, resp.Body.String())
	}

	var updated struct {
		Role     string     `json:"role"`
		VIPUntil *time.Time `json:"vip_until"`
		IsVIP    bool       `json:"is_vip"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode update response: %v", err)
	}
	if updated.Role != "vip" || !updated.IsVIP {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.VIPUntil == nil {
		t.Fatal("expected vip_until to be set")
	}
	wantUntil := time.Now().UTC().AddDate(0, 0, 14)
	if diff := updated.VIPUntil.Sub(wantUntil); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("vip_until = %v, want about %v", updated.VIPUntil, wantUntil)
	}
}

func TestAdminUsers_SetAndClearVIPUntil(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 8501, "admin", nil)
	targetID := seedAccount(t, ts.pool, 8502, "vip", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")

	exact := time.Date(2027, 3, 15, 12, 0, 0, 0, time.UTC)
	resp := performJSONRequest(t, ts.router, http.MethodPatch, "/admin/users/"+targetID.String(),
		map[string]any{"vip_until": exact.Format(time.RFC3339)}, adminToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("set vip_until status = %d, body %s", resp.Code, resp.Body.String())
	}

	var updated struct {
		VIPUntil *time.Time `json:"vip_until"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode set response: %v", err)
	}
	if updated.VIPUntil == nil || !updated.VIPUntil.Equal(exact) {
		t.Fatalf("vip_until = %v, want exactly %v", updated.VIPUntil, exact)
	}

	// add_days shifts from the freshly set expiry, not from now.
	resp = performJSONRequest(t, ts.router, http.MethodPatch, "/admin/users/"+targetID.String(),
		map[string]any{"vip_until": exact.Format(time.RFC3339), "add_days": 10}, adminToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("set-and-extend status = %d, body %s", resp.Code, resp.Body.String())
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode set-and-extend response: %v", err)
	}
	want := exact.AddDate(0, 0, 10)
	if updated.VIPUntil == nil || !updated.VIPUntil.Equal(want) {
		t.Fatalf("vip_until = %v, want %v", updated.VIPUntil, want)
	}

	// An explicit null removes the expiry outright.
	resp = performJSONRequest(t, ts.router, http.MethodPatch, "/admin/users/"+targetID.String(),
		map[string]any{"vip_until": nil}, adminToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("clear vip_until status = %d, body %s", resp.Code, resp.Body.String())
	}
	var cleared struct {
		VIPUntil *time.Time `json:"vip_until"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &cleared); err != nil {
		t.Fatalf("decode clear response: %v", err)
	}
	if cleared.VIPUntil != nil {
		t.Fatalf("vip_until = %v, want cleared", cleared.VIPUntil)
	}

	bad := performJSONRequest(t, ts.router, http.MethodPatch, "/admin/users/"+targetID.String(),
		map[string]any{"vip_until": "next tuesday"}, adminToken)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("malformed vip_until status = %d, want 400", bad.Code)
	}
}

func TestAdminUsers_AdminsMayDowngrade(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 8201, "admin", nil)
	targetID := seedAccount(t, ts.pool, 8202, "gold", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")

	resp := performJSONRequest(t, ts.router, http.MethodPatch, "/admin/users/"+targetID.String(),
		map[string]any{"role": "free"}, adminToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("downgrade status = %d, body %s", resp.Code, resp.Body.String())
	}

	var updated struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode update response: %v", err)
	}
	if updated.Role != "free" {
		t.Fatalf("role = %q, want free", updated.Role)
	}
}

func TestAdminUsers_RejectsInvalidRole(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 8301, "admin", nil)
	targetID := seedAccount(t, ts.pool, 8302, "free", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")

	resp := performJSONRequest(t, ts.router, http.MethodPatch, "/admin/users/"+targetID.String(),
		map[string]any{"role": "emperor"}, adminToken)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("invalid role status = %d, want 400", resp.Code)
	}
}

func TestAdminUsers_VIPActiveOverride(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 8401, "admin", nil)
	targetID := seedAccount(t, ts.pool, 8402, "free", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")

	resp := performJSONRequest(t, ts.router, http.MethodPatch, "/admin/users/"+targetID.String(),
		map[string]any{"vip_active": true}, adminToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("override status = %d, body %s", resp.Code, resp.Body.String())
	}

	var updated struct {
		Role  string `json:"role"`
		IsVIP bool   `json:"is_vip"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode update response: %v", err)
	}

	// vip_active grants access without touching the stored role.
	if updated.Role != "free" || !updated.IsVIP {
		t.Fatalf("unexpected override result: %+v", updated)
	}
}
