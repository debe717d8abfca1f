package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testTenantID = "11111111-2222-3333-4444-555555555555"
	testAudience = "66666666-7777-8888-9999-000000000000"
	testKid      = "test-key-1"
)

// testKeys generates an RSA key pair once per test binary.
var testPrivateKey = func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}()

// newJWKSServer serves the test public key in JWK format.
func newJWKSServer(t *testing.T) *httptest.Server {
	t.Helper()

	pub := testPrivateKey.Public().(*rsa.PublicKey)
	jwks := jwksDocument{
		Keys: []jwksKey{
			{
				Kty: "RSA",
				Use: "sig",
				Kid: testKid,
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)
	return server
}

// signTestToken signs an RS256 token with the test key. Extra claims
// override the defaults.
func signTestToken(t *testing.T, extra jwt.MapClaims) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss":                IssuerURL(testTenantID),
		"aud":                testAudience,
		"sub":                "subject-123",
		"email":              "jane@contoso.com",
		"name":               "Jane Doe",
		"preferred_username": "jane@contoso.onmicrosoft.com",
		"oid":                "oid-123",
		"tid":                testTenantID,
		"exp":                time.Now().Add(time.Hour).Unix(),
		"iat":                time.Now().Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid

	signed, err := token.SignedString(testPrivateKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	server := newJWKSServer(t)
	keySet := NewKeySet(server.URL, nil, nil)
	return NewValidator(keySet, testTenantID, testAudience)
}

func TestValidator_Validate(t *testing.T) {
	validator := newTestValidator(t)

	userInfo, err := validator.Validate(context.Background(), signTestToken(t, nil))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if userInfo.Sub != "subject-123" {
		t.Errorf("Sub = %q, want subject-123", userInfo.Sub)
	}
	if userInfo.Email != "jane@contoso.com" {
		t.Errorf("Email = %q, want jane@contoso.com", userInfo.Email)
	}
	if userInfo.Name != "Jane Doe" {
		t.Errorf("Name = %q, want Jane Doe", userInfo.Name)
	}
	if userInfo.TenantID != testTenantID {
		t.Errorf("TenantID = %q, want %q", userInfo.TenantID, testTenantID)
	}
}

func TestValidator_OptionalClaims(t *testing.T) {
	validator := newTestValidator(t)

	token := signTestToken(t, jwt.MapClaims{
		"job_title":       "Engineer",
		"office_location": "18/2111",
	})

	userInfo, err := validator.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if userInfo.JobTitle != "Engineer" {
		t.Errorf("JobTitle = %q, want Engineer", userInfo.JobTitle)
	}
	if userInfo.OfficeLocation != "18/2111" {
		t.Errorf("OfficeLocation = %q, want 18/2111", userInfo.OfficeLocation)
	}
}

func TestValidator_Rejections(t *testing.T) {
	validator := newTestValidator(t)

	tests := []struct {
		name  string
		extra jwt.MapClaims
	}{
		{"expired token", jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}},
		{"wrong audience", jwt.MapClaims{"aud": "some-other-app"}},
		{"wrong tenant issuer", jwt.MapClaims{"iss": IssuerURL("99999999-0000-0000-0000-000000000000")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := validator.Validate(context.Background(), signTestToken(t, tt.extra)); err == nil {
				t.Error("expected validation to fail")
			}
		})
	}
}

func TestValidator_AudienceURIForm(t *testing.T) {
	validator := newTestValidator(t)

	token := signTestToken(t, jwt.MapClaims{"aud": "api://" + testAudience})
	if _, err := validator.Validate(context.Background(), token); err != nil {
		t.Errorf("Validate() error = %v, want api:// audience accepted", err)
	}
}

func TestValidator_UnknownKid(t *testing.T) {
	validator := newTestValidator(t)

	claims := jwt.MapClaims{
		"iss": IssuerURL(testTenantID),
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "unknown-kid"
	signed, err := token.SignedString(testPrivateKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := validator.Validate(context.Background(), signed); err == nil {
		t.Error("expected validation to fail for unknown kid")
	}
}

func TestValidator_RejectsUnsignedToken(t *testing.T) {
	validator := newTestValidator(t)

	claims := jwt.MapClaims{
		"iss": IssuerURL(testTenantID),
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}

	if _, err := validator.Validate(context.Background(), signed); err == nil {
		t.Error("expected validation to fail for alg=none token")
	}
}

func TestKeySet_CachesAcrossCalls(t *testing.T) {
	fetches := 0
	pub := testPrivateKey.Public().(*rsa.PublicKey)
	jwks := jwksDocument{
		Keys: []jwksKey{{
			Kty: "RSA",
			Kid: testKid,
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer server.Close()

	keySet := NewKeySet(server.URL, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := keySet.Key(ctx, testKid); err != nil {
			t.Fatalf("Key() call %d error = %v", i, err)
		}
	}

	if fetches != 1 {
		t.Errorf("JWKS fetched %d times, want 1", fetches)
	}
}

func TestUserInfo_Identifier(t *testing.T) {
	tests := []struct {
		name string
		info AzureUserInfo
		want string
	}{
		{"email preferred", AzureUserInfo{Email: "a@b.com", PreferredUsername: "upn", Sub: "s"}, "a@b.com"},
		{"upn fallback", AzureUserInfo{PreferredUsername: "upn", Sub: "s"}, "upn"},
		{"sub fallback", AzureUserInfo{Sub: "s"}, "s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Identifier(); got != tt.want {
				t.Errorf("Identifier() = %q, want %q", got, tt.want)
			}
		})
	}
}
