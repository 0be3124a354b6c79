package ratelimit

import (
	"context"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Counter{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestAllow_DeniesOverLimit(t *testing.T) {
	l := NewLimiter(openTestDB(t), 3, time.Minute)

	want := []bool{true, true, true, false}
	for i, expect := range want {
		got, err := l.Allow(context.Background(), 1)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got != expect {
			t.Fatalf("call %d: expected allowed=%v, got %v", i, expect, got)
		}
	}
}

func TestAllow_WindowResets(t *testing.T) {
	db := openTestDB(t)
	l := NewLimiter(db, 2, time.Second)

	for i := 0; i < 2; i++ {
		if got, err := l.Allow(context.Background(), 2); err != nil || !got {
			t.Fatalf("call %d: allowed=%v err=%v", i, got, err)
		}
	}
	if got, err := l.Allow(context.Background(), 2); err != nil || got {
		t.Fatalf("expected denial at the limit, allowed=%v err=%v", got, err)
	}

	time.Sleep(1100 * time.Millisecond)

	if got, err := l.Allow(context.Background(), 2); err != nil || !got {
		t.Fatalf("expected reset after idle gap, allowed=%v err=%v", got, err)
	}

	var c Counter
	if err := db.Where("user_id = ?", uint64(2)).First(&c).Error; err != nil {
		t.Fatalf("load counter: %v", err)
	}
	if c.RequestCount != 1 {
		t.Fatalf("expected counter reset to 1, got %d", c.RequestCount)
	}
}

func TestAllow_DenialLeavesStateUntouched(t *testing.T) {
	db := openTestDB(t)
	l := NewLimiter(db, 1, time.Minute)

	if got, err := l.Allow(context.Background(), 3); err != nil || !got {
		t.Fatalf("first call: allowed=%v err=%v", got, err)
	}

	var before Counter
	if err := db.Where("user_id = ?", uint64(3)).First(&before).Error; err != nil {
		t.Fatalf("load counter: %v", err)
	}

	if got, err := l.Allow(context.Background(), 3); err != nil || got {
		t.Fatalf("second call: allowed=%v err=%v", got, err)
	}

	var after Counter
	if err := db.Where("user_id = ?", uint64(3)).First(&after).Error; err != nil {
		t.Fatalf("reload counter: %v", err)
	}
	if after.RequestCount != before.RequestCount || !after.LastRequest.Equal(before.LastRequest) {
		t.Fatalf("denied request mutated counter: before=%+v after=%+v", before, after)
	}
}

func TestAllow_UsersAreIndependent(t *testing.T) {
	l := NewLimiter(openTestDB(t), 1, time.Minute)

	if got, err := l.Allow(context.Background(), 10); err != nil || !got {
		t.Fatalf("user 10 first call: allowed=%v err=%v", got, err)
	}
	if got, err := l.Allow(context.Background(), 10); err != nil || got {
		t.Fatalf("user 10 should be denied, allowed=%v err=%v", got, err)
	}
	if got, err := l.Allow(context.Background(), 11); err != nil || !got {
		t.Fatalf("user 11 must not be affected, allowed=%v err=%v", got, err)
	}
}
