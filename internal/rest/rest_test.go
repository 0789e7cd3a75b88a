package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"xchclient/internal/dto"
	"xchclient/internal/xerrors"
)

func TestClient_GetTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/public/ticker" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSD","bid":"100.5","ask":"100.6","last":"100.55","volume_24h":"1000"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, http.DefaultTransport)
	ticker, err := c.GetTicker(context.Background(), "BTCUSD")
	if err != nil {
		t.Fatal(err)
	}
	if ticker.Symbol != "BTCUSD" || ticker.Bid.F64() != 100.5 {
		t.Fatalf("unexpected ticker: %+v", ticker)
	}
}

func TestClient_AuthorizePostsCredentialsAndParsesToken(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/authorize" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok123","expiration":3600}`))
	}))
	defer srv.Close()

	c := New(srv.URL, http.DefaultTransport)
	tok, err := c.Authorize(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "tok123" || tok.Expiration != 3600 {
		t.Fatalf("unexpected token: %+v", tok)
	}
	if gotBody["login"] != "alice" || gotBody["password"] != "secret" {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}

func TestClient_DomainErrorMapsCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"INSUFFICIENT_BALANCE","message":"not enough funds"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, http.DefaultTransport)
	_, err := c.PlaceOrder(context.Background(), dto.OrderRequest{Symbol: "BTCUSD"})
	if err == nil {
		t.Fatal("expected error")
	}
	var xe *xerrors.Error
	if !errors.As(err, &xe) {
		t.Fatalf("want *xerrors.Error, got %T", err)
	}
	if xe.Code != "INSUFFICIENT_BALANCE" || xe.Kind != xerrors.KindDomainError {
		t.Fatalf("unexpected error: %+v", xe)
	}
}

func TestClient_401MapsToAuthentication(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, http.DefaultTransport)
	_, err := c.GetBalances(context.Background())
	if xerrors.KindOf(err) != xerrors.KindAuthentication {
		t.Fatalf("want KindAuthentication, got %v", err)
	}
}

func TestClient_CancelAllOrdersScopesBySymbol(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, http.DefaultTransport)
	if err := c.CancelAllOrders(context.Background(), "BTCUSD"); err != nil {
		t.Fatal(err)
	}
	if gotQuery != "symbol=BTCUSD" {
		t.Fatalf("want symbol=BTCUSD, got %q", gotQuery)
	}
}
