package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/casedesk/casedesk/internal/shared"
	_ "github.com/casedesk/casedesk/testing"
)

func newManager(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return shared.NewSessionManager(client, "test_session", "secret", time.Hour, false), mr
}

func TestSessionRoundTrip(t *testing.T) {
	sm, _ := newManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.SetUser("u1")
	sess.Set("theme", "dark")

	rr := httptest.NewRecorder()
	if err := sm.Commit(ctx, rr, req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "test_session" {
		t.Fatalf("cookies = %v", cookies)
	}

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, again)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.User() != "u1" || loaded.Get("theme") != "dark" {
		t.Fatalf("session lost data: user=%q theme=%q", loaded.User(), loaded.Get("theme"))
	}
}

func TestSessionBearerToken(t *testing.T) {
	sm, _ := newManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := sm.Load(ctx, req)
	sess.SetUser("u2")
	id := sess.EnsureID()
	if err := sm.Commit(ctx, httptest.NewRecorder(), req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}

	api := httptest.NewRequest(http.MethodGet, "/", nil)
	api.Header.Set("Authorization", "Bearer "+id)
	loaded, err := sm.Load(ctx, api)
	if err != nil {
		t.Fatalf("load by bearer: %v", err)
	}
	if loaded.User() != "u2" {
		t.Fatalf("user = %q", loaded.User())
	}
}

func TestSessionDestroy(t *testing.T) {
	sm, mr := newManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := sm.Load(ctx, req)
	sess.SetUser("u3")
	id := sess.EnsureID()
	if err := sm.Commit(ctx, httptest.NewRecorder(), req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !mr.Exists("casedesk:session:" + id) {
		t.Fatal("session not stored")
	}

	sm.Destroy(sess)
	rr := httptest.NewRecorder()
	if err := sm.Commit(ctx, rr, req, sess); err != nil {
		t.Fatalf("commit destroy: %v", err)
	}
	if mr.Exists("casedesk:session:" + id) {
		t.Fatal("destroyed session still in redis")
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Fatalf("expected expiring cookie, got %v", cookies)
	}
}

func TestSessionExpiry(t *testing.T) {
	sm, mr := newManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := sm.Load(ctx, req)
	sess.SetUser("u4")
	id := sess.EnsureID()
	if err := sm.Commit(ctx, httptest.NewRecorder(), req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}

	mr.FastForward(2 * time.Hour)

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.Header.Set("Authorization", "Bearer "+id)
	loaded, err := sm.Load(ctx, again)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.User() != "" {
		t.Fatal("expired session must come back empty")
	}
}
