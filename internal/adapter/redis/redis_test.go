package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/mushaftest"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestSessionStoreStateAndData(t *testing.T) {
	client, mr := newClient(t)
	store := NewSessionStore(client, time.Hour)
	ctx := context.Background()

	st, err := store.GetState(ctx, "u1")
	if err != nil || st != domain.StateStart {
		t.Fatalf("unknown users start fresh: %s %v", st, err)
	}
	if err := store.SetState(ctx, "u1", domain.StateReading); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if st, _ := store.GetState(ctx, "u1"); st != domain.StateReading {
		t.Fatalf("expected reading, got %s", st)
	}

	if _, err := store.GetData(ctx, "u1", domain.SessionKeyPage); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.SetData(ctx, "u1", domain.SessionKeyPage, "42"); err != nil {
		t.Fatalf("set data: %v", err)
	}
	if v, err := store.GetData(ctx, "u1", domain.SessionKeyPage); err != nil || v != "42" {
		t.Fatalf("get data: %q %v", v, err)
	}
	if ttl := mr.TTL("mushaf:data:u1:page"); ttl != time.Hour {
		t.Fatalf("expected a one hour TTL, got %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := store.GetData(ctx, "u1", domain.SessionKeyPage); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expired preference should be gone, got %v", err)
	}

	_ = store.SetData(ctx, "u1", domain.SessionKeyScript, "quran-simple")
	if err := store.DeleteData(ctx, "u1", domain.SessionKeyScript); err != nil {
		t.Fatalf("delete data: %v", err)
	}
	if err := store.DeleteState(ctx, "u1"); err != nil {
		t.Fatalf("delete state: %v", err)
	}
	if mr.Exists("mushaf:data:u1:script") || mr.Exists("mushaf:state:u1") {
		t.Fatalf("keys should be deleted")
	}
}

func TestConnectRejectsBadURI(t *testing.T) {
	if _, err := Connect("not a uri"); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestCachedTextSourceReadsThrough(t *testing.T) {
	client, mr := newClient(t)
	inner := mushaftest.NewTextSource()
	src := NewCachedTextSource(client, inner, 0, nil)
	ctx := context.Background()

	first, err := src.FetchSurah(ctx, domain.ScriptUthmani, 112)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !mr.Exists("mushaf:surah:quran-uthmani:112") {
		t.Fatalf("surah should be written to redis")
	}

	second, err := src.FetchSurah(ctx, domain.ScriptUthmani, 112)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if inner.Calls(domain.ScriptUthmani, 112) != 1 {
		t.Fatalf("second fetch should come from redis")
	}
	if len(second.Ayahs) != 4 || second.Ayahs[3].Text != first.Ayahs[3].Text {
		t.Fatalf("cached payload differs: %+v", second)
	}

	if _, err := src.FetchSurah(ctx, domain.ScriptSimple, 112); err != nil {
		t.Fatalf("other script: %v", err)
	}
	if inner.Calls(domain.ScriptSimple, 112) != 1 {
		t.Fatalf("scripts are cached separately")
	}
}

func TestCachedTextSourceSurvivesRedisProblems(t *testing.T) {
	client, mr := newClient(t)
	inner := mushaftest.NewTextSource()
	src := NewCachedTextSource(client, inner, time.Minute, nil)
	ctx := context.Background()

	if err := mr.Set("mushaf:surah:quran-uthmani:1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	raw, err := src.FetchSurah(ctx, domain.ScriptUthmani, 1)
	if err != nil || len(raw.Ayahs) != 7 {
		t.Fatalf("corrupt entry should be refetched: %v", err)
	}

	mr.Close()
	raw, err = src.FetchSurah(ctx, domain.ScriptUthmani, 2)
	if err != nil || len(raw.Ayahs) != 286 {
		t.Fatalf("redis outage should fall through: %v", err)
	}

	inner.Fail(3, mushaftest.ErrInjected)
	if _, err := src.FetchSurah(ctx, domain.ScriptUthmani, 3); !errors.Is(err, mushaftest.ErrInjected) {
		t.Fatalf("inner errors propagate, got %v", err)
	}
}
