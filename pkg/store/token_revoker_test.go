package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryTokenRevokerExpires(t *testing.T) {
	r := NewMemoryTokenRevoker()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if err := r.Revoke("jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := r.Revoke("jti-ignored", 0); err != nil {
		t.Fatalf("revoke zero ttl: %v", err)
	}
	if ok, _ := r.IsRevoked("jti-1"); !ok {
		t.Fatal("expected jti-1 revoked")
	}
	if ok, _ := r.IsRevoked("jti-ignored"); ok {
		t.Fatal("zero ttl must not revoke")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := r.IsRevoked("jti-1"); ok {
		t.Fatal("expected revocation to expire")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedisTokenRevoker(mr.Addr(), "")
	defer r.Close()

	if err := r.Revoke("jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, err := r.IsRevoked("jti-1"); err != nil || !ok {
		t.Fatalf("expected revoked, ok=%v err=%v", ok, err)
	}
	if !mr.Exists("medexplain:revoked:jti-1") {
		t.Fatal("expected namespaced key in redis")
	}
	mr.FastForward(2 * time.Minute)
	if ok, _ := r.IsRevoked("jti-1"); ok {
		t.Fatal("expected key to expire")
	}
	if ok, _ := r.IsRevoked("never"); ok {
		t.Fatal("unknown token must not be revoked")
	}
}

func TestRedisTokenRevokerWithSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	revoker := NewRedisTokenRevoker(mr.Addr(), "")
	defer revoker.Close()
	s, _ := NewJWTSessionStore(testSecret, time.Hour, revoker)

	token, _ := s.NewSession("user-9")
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); ok || err == nil {
		t.Fatalf("expected revoked token, ok=%v err=%v", ok, err)
	}
}
