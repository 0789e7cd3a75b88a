package cache

import (
	"testing"
	"time"

	redismock "github.com/go-redis/redismock/v9"
)

func TestRedisCache_GetHitAndMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client)

	mock.ExpectGet("present").SetVal("value")
	v, ok := c.Get("present")
	if !ok || string(v) != "value" {
		t.Fatalf("want hit value, got %q %v", v, ok)
	}

	mock.ExpectGet("absent").RedisNil()
	if _, ok := c.Get("absent"); ok {
		t.Fatal("expected miss for absent key")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedisCache_SetForwardsTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client)

	mock.ExpectSet("k", []byte("v"), time.Minute).SetVal("OK")
	c.Set("k", []byte("v"), time.Minute)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
