package xchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"xchclient/internal/config"
	"xchclient/internal/decimal"
	"xchclient/internal/dto"
	"xchclient/internal/ordertracker"
)

func testConfig(restURL, wsURL string) config.Config {
	cfg := config.Default()
	cfg.Exchange = config.ExchangeConfig{Name: "testex", RESTURL: restURL, WSURL: wsURL}
	cfg.Auth = config.AuthConfig{Login: "alice", Password: "secret"}
	return cfg
}

func wsURLFor(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(config.Config{})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestClient_TickerAuthorizesThenFetches(t *testing.T) {
	var sawAuth, sawTicker bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/authorize":
			sawAuth = true
			w.Write([]byte(`{"access_token":"tok-1","expiration":3600}`))
		case "/v1/public/ticker":
			sawTicker = true
			w.Write([]byte(`{"symbol":"BTCUSD","bid":"100.5","ask":"100.6","last":"100.55","volume_24h":"10"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	cli, err := New(testConfig(srv.URL, "ws://unused"), WithPrometheusRegistry(prometheus.NewRegistry()))
	if err != nil {
		t.Fatal(err)
	}

	ticker, err := cli.Ticker(context.Background(), "BTCUSD")
	if err != nil {
		t.Fatal(err)
	}
	if ticker.Symbol != "BTCUSD" {
		t.Fatalf("unexpected ticker: %+v", ticker)
	}
	if !sawTicker {
		t.Fatal("expected a ticker request")
	}
	if !sawAuth {
		t.Fatal("expected the facade to mint a token on its first request")
	}
}

func TestClient_PlaceOrderTracksLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/authorize":
			w.Write([]byte(`{"access_token":"tok-1","expiration":3600}`))
		case r.URL.Path == "/v1/orders" && r.Method == http.MethodPost:
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				t.Fatalf("expected bearer token, got %q", r.Header.Get("Authorization"))
			}
			w.Write([]byte(`{"order_id":"o1","symbol":"BTCUSD","side":"buy","type":"limit","qty":"1","filled_qty":"0","status":"new"}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	cli, err := New(testConfig(srv.URL, "ws://unused"), WithPrometheusRegistry(prometheus.NewRegistry()))
	if err != nil {
		t.Fatal(err)
	}

	var gotEvents int
	cli.OnOrderUpdate(func(e ordertracker.Event) { gotEvents++ })

	req := dto.OrderRequest{Symbol: "BTCUSD", Side: "buy", Type: "limit", Qty: decimal.NewFromFloat(1)}
	order, err := cli.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if order.OrderID != "o1" {
		t.Fatalf("unexpected order: %+v", order)
	}

	open := cli.OpenOrders()
	if len(open) != 1 || open[0].OrderID != "o1" {
		t.Fatalf("expected tracked open order, got %+v", open)
	}
}

func TestClient_ConnectPumpsBookDeltasIntoAggregator(t *testing.T) {
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/authorize":
			w.Write([]byte(`{"access_token":"tok-1","expiration":3600}`))
		case "/v1/public/depth":
			w.Write([]byte(`{"symbol":"BTCUSD","update_id":1,"bids":[{"price":"100","qty":"1"}],"asks":[{"price":"101","qty":"1"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer rest.Close()

	upgrader := websocket.Upgrader{}
	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"book","symbol":"BTCUSD","update_id":2,"bids":[{"price":"99","qty":"2"}],"asks":[]}`))
		}
	}))
	defer ws.Close()

	cli, err := New(testConfig(rest.URL, wsURLFor(ws.URL)), WithPrometheusRegistry(prometheus.NewRegistry()))
	if err != nil {
		t.Fatal(err)
	}
	if err := cli.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	if err := cli.SubscribeBook("BTCUSD"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		book, err := cli.OrderBook(context.Background(), "BTCUSD")
		if err == nil && book.UpdateID() == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("book was never updated by the websocket delta")
}

func TestClient_MetricsHandlerServesCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cli, err := New(testConfig(srv.URL, "ws://unused"), WithPrometheusRegistry(reg))
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	cli.MetricsHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
