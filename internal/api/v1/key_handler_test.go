package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"resale-hub/internal/service"
)

func TestRedeem_UpgradesToVipAndRespectsMaxUses(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 9001, "admin", nil)
	userID := seedAccount(t, ts.pool, 9002, "free", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")
	userToken := mintSessionToken(t, userID.String(), "free")

	created := createKey(t, ts, adminToken, map[string]any{
		"type":          "vip",
		"duration_days": 30,
	})

	resp := performJSONRequest(t, ts.router, http.MethodPost, "/redeem",
		map[string]any{"code": created.Code}, userToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("redeem status = %d, body %s", resp.Code, resp.Body.String())
	}

	var redeemed struct {
		OK   bool `json:"ok"`
		User struct {
			Role     string     `json:"role"`
			VIPUntil *time.Time `json:"vip_until"`
			IsVIP    bool       `json:"is_vip"`
		} `json:"user"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &redeemed); err != nil {
		t.Fatalf("decode redeem response: %v", err)
	}
	if !redeemed.OK || redeemed.User.Role != "vip" || !redeemed.User.IsVIP {
		t.Fatalf("unexpected redeem result: %+v", redeemed)
	}
	if redeemed.User.VIPUntil == nil {
		t.Fatal("expected vip_until to be set")
	}
	wantUntil := time.Now().UTC().AddDate(0, 0, 30)
	if diff := redeemed.User.VIPUntil.Sub(wantUntil); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("vip_until = %v, want about %v", redeemed.User.VIPUntil, wantUntil)
	}

	// Default max_uses is one.
	again := performJSONRequest(t, ts.router, http.MethodPost, "/redeem",
		map[string]any{"code": created.Code}, userToken)
	if again.Code != http.StatusConflict {
		t.Fatalf("second redeem status = %d, want 409", again.Code)
	}
	if kind := decodeErrorKind(t, again.Body.Bytes()); kind != "CODE_LIMIT" {
		t.Fatalf("error kind = %q, want CODE_LIMIT", kind)
	}
}

func TestRedeem_ExtendsRemainingTimeAndKeepsHigherRole(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 9101, "admin", nil)
	remaining := time.Now().UTC().AddDate(0, 0, 10)
	userID := seedAccount(t, ts.pool, 9102, "gold", &remaining)
	adminToken := mintSessionToken(t, adminID.String(), "admin")
	userToken := mintSessionToken(t, userID.String(), "gold")

	created := createKey(t, ts, adminToken, map[string]any{
		"type":          "vip",
		"duration_days": 30,
	})

	resp := performJSONRequest(t, ts.router, http.MethodPost, "/redeem",
		map[string]any{"code": created.Code}, userToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("redeem status = %d, body %s", resp.Code, resp.Body.String())
	}

	var redeemed struct {
		User struct {
			Role     string     `json:"role"`
			VIPUntil *time.Time `json:"vip_until"`
		} `json:"user"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &redeemed); err != nil {
		t.Fatalf("decode redeem response: %v", err)
	}

	// A vip key never demotes a gold account.
	if redeemed.User.Role != "gold" {
		t.Fatalf("role = %q, want gold", redeemed.User.Role)
	}

	// Remaining time is extended, not replaced: 10 days left + 30 day key.
	wantUntil := remaining.AddDate(0, 0, 30)
	if redeemed.User.VIPUntil == nil {
		t.Fatal("expected vip_until to be set")
	}
	if diff := redeemed.User.VIPUntil.Sub(wantUntil); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("vip_until = %v, want about %v", redeemed.User.VIPUntil, wantUntil)
	}
}

func TestRedeem_UnknownAndExpiredKeys(t *testing.T) {
	ts := setupAPITestServer(t)

	userID := seedAccount(t, ts.pool, 9201, "free", nil)
	userToken := mintSessionToken(t, userID.String(), "free")

	resp := performJSONRequest(t, ts.router, http.MethodPost, "/redeem",
		map[string]any{"code": "NOPE404"}, userToken)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown key status = %d, want 404", resp.Code)
	}
	if kind := decodeErrorKind(t, resp.Body.Bytes()); kind != "BAD_CODE" {
		t.Fatalf("error kind = %q, want BAD_CODE", kind)
	}

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := ts.pool.Exec(context.Background(),
		`INSERT INTO redemption_keys (id, code, type, duration_days, max_uses, used_count, expires_at, created_by, created_at)
		 VALUES ($1, $2, 'vip', 30, 1, 0, $3, $4, NOW())`,
		uuid.New(), "OLDKEY99", past, userID,
	); err != nil {
		t.Fatalf("seed expired key: %v", err)
	}

	expired := performJSONRequest(t, ts.router, http.MethodPost, "/redeem",
		map[string]any{"code": "OLDKEY99"}, userToken)
	if expired.Code != http.StatusGone {
		t.Fatalf("expired key status = %d, want 410", expired.Code)
	}
	if kind := decodeErrorKind(t, expired.Body.Bytes()); kind != "CODE_EXPIRED" {
		t.Fatalf("error kind = %q, want CODE_EXPIRED", kind)
	}
}

func TestAdminKeys_RequireAdminRole(t *testing.T) {
	ts := setupAPITestServer(t)

	userID := seedAccount(t, ts.pool, 9301, "free", nil)
	userToken := mintSessionToken(t, userID.String(), "free")

	resp := performJSONRequest(t, ts.router, http.MethodGet, "/admin/keys", nil, userToken)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.Code)
	}
}

func TestCreateKey_ValidationAndUnlimitedUses(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 9401, "admin", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")

	badType := performJSONRequest(t, ts.router, http.MethodPost, "/admin/keys",
		map[string]any{"type": "platinum", "duration_days": 30}, adminToken)
	if badType.Code != http.StatusBadRequest {
		t.Fatalf("bad type status = %d, want 400", badType.Code)
	}

	shortCode := performJSONRequest(t, ts.router, http.MethodPost, "/admin/keys",
		map[string]any{"type": "vip", "duration_days": 30, "custom_code": "AB"}, adminToken)
	if shortCode.Code != http.StatusBadRequest {
		t.Fatalf("short custom code status = %d, want 400", shortCode.Code)
	}

	negativeUses := performJSONRequest(t, ts.router, http.MethodPost, "/admin/keys",
		map[string]any{"type": "vip", "duration_days": 30, "max_uses": -1}, adminToken)
	if negativeUses.Code != http.StatusBadRequest {
		t.Fatalf("negative max_uses status = %d, want 400", negativeUses.Code)
	}
	var negativeBody struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(negativeUses.Body.Bytes(), &negativeBody); err != nil {
		t.Fatalf("decode negative max_uses response: %v", err)
	}
	if !strings.Contains(negativeBody.Message, "max_uses") {
		t.Fatalf("negative max_uses message = %q, want it to name max_uses", negativeBody.Message)
	}

	first := createKey(t, ts, adminToken, map[string]any{
		"type":          "vip",
		"duration_days": 30,
		"custom_code":   "LAUNCH2026",
	})
	if first.Code != "LAUNCH2026" {
		t.Fatalf("custom code stored as %q", first.Code)
	}

	dup := performJSONRequest(t, ts.router, http.MethodPost, "/admin/keys",
		map[string]any{"type": "gold", "duration_days": 7, "custom_code": "launch2026"}, adminToken)
	if dup.Code != http.StatusConflict {
		t.Fatalf("duplicate custom code status = %d, want 409", dup.Code)
	}

	// max_uses 0 means unlimited.
	unlimited := createKey(t, ts, adminToken, map[string]any{
		"type":          "vip",
		"duration_days": 7,
		"max_uses":      0,
	})
	if unlimited.MaxUses != nil {
		t.Fatalf("max_uses = %v, want nil for unlimited", *unlimited.MaxUses)
	}

	for i, tgID := range []int64{9402, 9403, 9404} {
		memberID := seedAccount(t, ts.pool, tgID, "free", nil)
		memberToken := mintSessionToken(t, memberID.String(), "free")
		resp := performJSONRequest(t, ts.router, http.MethodPost, "/redeem",
			map[string]any{"code": unlimited.Code}, memberToken)
		if resp.Code != http.StatusOK {
			t.Fatalf("unlimited redeem %d status = %d, body %s", i+1, resp.Code, resp.Body.String())
		}
	}
}

func TestBatchDeleteKeys_ReportsAggregateCounts(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 9501, "admin", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")

	keyA := createKey(t, ts, adminToken, map[string]any{"type": "vip", "duration_days": 7})
	keyB := createKey(t, ts, adminToken, map[string]any{"type": "gold", "duration_days": 7})

	resp := performJSONRequest(t, ts.router, http.MethodDelete, "/admin/keys",
		map[string]any{"ids": []string{keyA.ID, keyB.ID, uuid.NewString()}}, adminToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("batch delete status = %d, body %s", resp.Code, resp.Body.String())
	}

	var result struct {
		Deleted int `json:"deleted"`
		Missing int `json:"missing"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode batch delete response: %v", err)
	}
	if result.Deleted != 2 || result.Missing != 1 {
		t.Fatalf("batch delete result = %+v, want deleted 2 missing 1", result)
	}
}

func TestRedeem_ConcurrentSingleUseKey(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 9601, "admin", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")
	created := createKey(t, ts, adminToken, map[string]any{
		"type":          "vip",
		"duration_days": 30,
	})

	const contenders = 8
	userIDs := make([]uuid.UUID, contenders)
	for i := range userIDs {
		userIDs[i] = seedAccount(t, ts.pool, int64(9700+i), "free", nil)
	}

	var wg sync.WaitGroup
	errs := make(chan error, contenders)
	for _, id := range userIDs {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			_, err := ts.keySvc.Redeem(context.Background(), userID, created.Code)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	successes, depleted := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, service.ErrKeyDepleted):
			depleted++
		default:
			t.Fatalf("unexpected redeem error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}
	if depleted != contenders-1 {
		t.Fatalf("depleted = %d, want %d", depleted, contenders-1)
	}
}

func TestAdminKeys_UpdateMetaLeavesAbsentFieldsAlone(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 9801, "admin", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")

	created := createKey(t, ts, adminToken, map[string]any{
		"type":          "vip",
		"duration_days": 30,
		"tag":           "wave-1",
		"assigned_user": "reseller-a",
	})

	resp := performJSONRequest(t, ts.router, http.MethodPatch, "/admin/keys/"+created.ID+"/meta",
		map[string]any{"note": "handed out at launch"}, adminToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("meta update status = %d, body %s", resp.Code, resp.Body.String())
	}

	var updated keyView
	if err := json.Unmarshal(resp.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode meta update response: %v", err)
	}
	if updated.Tag == nil || *updated.Tag != "wave-1" {
		t.Fatalf("tag = %v, want wave-1 untouched", updated.Tag)
	}
	if updated.AssignedUser == nil || *updated.AssignedUser != "reseller-a" {
		t.Fatalf("assigned_user = %v, want reseller-a untouched", updated.AssignedUser)
	}
	if updated.Note == nil || *updated.Note != "handed out at launch" {
		t.Fatalf("note = %v, want it set", updated.Note)
	}

	// An explicit empty string still clears the field.
	resp = performJSONRequest(t, ts.router, http.MethodPatch, "/admin/keys/"+created.ID+"/meta",
		map[string]any{"tag": ""}, adminToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("meta clear status = %d, body %s", resp.Code, resp.Body.String())
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode meta clear response: %v", err)
	}
	if updated.Tag != nil {
		t.Fatalf("tag = %v, want cleared", *updated.Tag)
	}
	if updated.Note == nil || *updated.Note != "handed out at launch" {
		t.Fatalf("note = %v, want it preserved through the clear", updated.Note)
	}
}

func TestAdminKeys_ListFiltersByType(t *testing.T) {
	ts := setupAPITestServer(t)

	adminID := seedAccount(t, ts.pool, 9901, "admin", nil)
	adminToken := mintSessionToken(t, adminID.String(), "admin")

	createKey(t, ts, adminToken, map[string]any{"type": "vip", "duration_days": 7})
	gold := createKey(t, ts, adminToken, map[string]any{"type": "gold", "duration_days": 7})

	resp := performJSONRequest(t, ts.router, http.MethodGet, "/admin/keys?type=gold", nil, adminToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("list status = %d, body %s", resp.Code, resp.Body.String())
	}

	var page struct {
		Items      []keyView `json:"items"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if page.Pagination.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("expected one gold key, got %+v", page)
	}
	if page.Items[0].ID != gold.ID || page.Items[0].Type != "gold" {
		t.Fatalf("wrong key in filter result: %+v", page.Items[0])
	}
}

func createKey(t *testing.T, ts *testServer, adminToken string, body map[string]any) keyView {
	t.Helper()

	resp := performJSONRequest(t, ts.router, http.MethodPost, "/admin/keys", body, adminToken)
	if resp.Code != http.StatusCreated {
		t.Fatalf("create key status = %d, body %s", resp.Code, resp.Body.String())
	}

	var created keyView
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created key: %v", err)
	}
	return created
}

func seedAccount(t *testing.T, pool *pgxpool.Pool, telegramID int64, role string, vipUntil *time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	if _, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, role, vip_until, telegram_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		id, role, vipUntil, telegramID,
	); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return id
}
