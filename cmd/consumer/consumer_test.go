package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/geotrack/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	lastGeo  string
	lastHash string
	prevRoom string // value served by HGet for the "room" field
	zremKeys []string
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	f.lastGeo = key
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	f.lastHash = key
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	return nil
}

func (f *fakeUpdater) HGet(ctx context.Context, key, field string) (string, error) {
	return f.prevRoom, nil
}

func (f *fakeUpdater) ZRem(ctx context.Context, key string, member string) error {
	f.zremKeys = append(f.zremKeys, key)
	return nil
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	rep := &models.LocationReport{UserID: "alice", RoomName: "general", Lat: 1, Lng: 2, Speed: 3}
	ctx := context.Background()
	start := time.Now()
	if err := updateRedisWithRetry(ctx, f, rep, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5, failH: 0}
	rep := &models.LocationReport{UserID: "alice", RoomName: "general", Lat: 1, Lng: 2}
	ctx := context.Background()
	if err := updateRedisWithRetry(ctx, f, rep, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestUpdateRedisWithRetry_UsesPresenceKeys(t *testing.T) {
	f := &fakeUpdater{}
	rep := &models.LocationReport{UserID: "alice", RoomName: "arena", Lat: 1, Lng: 2}
	if err := updateRedisWithRetry(context.Background(), f, rep, 1, time.Millisecond); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.lastGeo != "presence_geo:arena" {
		t.Fatalf("geo key = %q", f.lastGeo)
	}
	if f.lastHash != "presence:meta:alice" {
		t.Fatalf("hash key = %q", f.lastHash)
	}
}

func TestUpdateRedisWithRetry_RoomChangeLeavesOldRoom(t *testing.T) {
	f := &fakeUpdater{prevRoom: "old"}
	rep := &models.LocationReport{UserID: "alice", RoomName: "new", Lat: 1, Lng: 2}
	if err := updateRedisWithRetry(context.Background(), f, rep, 1, time.Millisecond); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(f.zremKeys) != 1 || f.zremKeys[0] != "presence_geo:old" {
		t.Fatalf("expected removal from the old room's geo set, got %v", f.zremKeys)
	}
	if f.lastGeo != "presence_geo:new" {
		t.Fatalf("geo key = %q", f.lastGeo)
	}
}

func TestUpdateRedisWithRetry_SameRoomNoRemoval(t *testing.T) {
	f := &fakeUpdater{prevRoom: "general"}
	rep := &models.LocationReport{UserID: "alice", RoomName: "general", Lat: 1, Lng: 2}
	if err := updateRedisWithRetry(context.Background(), f, rep, 1, time.Millisecond); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(f.zremKeys) != 0 {
		t.Fatalf("unexpected geo-set removals: %v", f.zremKeys)
	}
}
