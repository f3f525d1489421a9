package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func hs256Token(t *testing.T, secret, claims string) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := enc.EncodeToString([]byte(claims))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(header + "." + payload))
	return header + "." + payload + "." + enc.EncodeToString(mac.Sum(nil))
}

func TestVerifyDevMode(t *testing.T) {
	v := &Verifier{Mode: "dev"}
	p, err := v.Verify("acme:planner")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Tenant != "acme" || p.Role != "planner" {
		t.Fatalf("principal: %+v", p)
	}
	if _, err := v.Verify("no-role"); err == nil {
		t.Fatal("malformed dev token accepted")
	}
}

func TestVerifyHMACMode(t *testing.T) {
	v := &Verifier{Mode: "hmac", HMACSecret: []byte("k"), TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub"}

	tok := hs256Token(t, "k", `{"tenant":"acme","role":"Admin","sub":"u1"}`)
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Tenant != "acme" || p.Role != "admin" || p.Subject != "u1" {
		t.Fatalf("principal: %+v", p)
	}

	if _, err := v.Verify(hs256Token(t, "wrong", `{"tenant":"acme"}`)); err == nil {
		t.Fatal("bad signature accepted")
	}
	if _, err := v.Verify(hs256Token(t, "k", `{"role":"admin"}`)); err == nil {
		t.Fatal("missing tenant claim accepted")
	}
}

func TestVerifyHMACDefaultRole(t *testing.T) {
	v := &Verifier{Mode: "hmac", HMACSecret: []byte("k"), TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub"}
	p, err := v.Verify(hs256Token(t, "k", `{"tenant":"acme"}`))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Role != "viewer" {
		t.Fatalf("default role should be viewer, got %q", p.Role)
	}
}
