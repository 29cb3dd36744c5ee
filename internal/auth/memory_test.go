package auth

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestUser(id int64, username, email string) *User {
	return &User{
		ID:            id,
		Username:      username,
		Email:         email,
		Roles:         map[string]struct{}{RoleUser: {}},
		Permissions:   make(map[string]struct{}),
		CreatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Identity:      Identity{Kind: IdentityLocal},
		RefreshTokens: make(map[string]time.Time),
	}
}

func TestAddAndLookupAcrossIndexes(t *testing.T) {
	repo := NewInMemoryRepository()
	u := newTestUser(repo.NextID(), "Alice Smith", "Alice@Example.com")
	if err := repo.Add(u); err != nil {
		t.Fatalf("Add: %v", err)
	}

	byName, ok := repo.Get("  alicesmith ")
	if !ok {
		t.Fatal("expected lookup by normalized username")
	}
	if byName.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %s", byName.Email)
	}
	if _, ok := repo.FindByID(byName.ID); !ok {
		t.Fatal("expected lookup by id")
	}
	if _, ok := repo.FindByEmail("ALICE@example.COM"); !ok {
		t.Fatal("expected lookup by email")
	}
}

func TestAddRejectsDuplicates(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Add(newTestUser(repo.NextID(), "alice", "alice@example.com")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := repo.Add(newTestUser(repo.NextID(), "ALICE", "other@example.com")); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for username, got %v", err)
	}
	if err := repo.Add(newTestUser(repo.NextID(), "bob", "Alice@example.com")); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for email, got %v", err)
	}
}

func TestUpdateRequiresExistingUser(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Update(newTestUser(1, "ghost", "ghost@example.com")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshIndexFollowsUpdates(t *testing.T) {
	repo := NewInMemoryRepository()
	u := newTestUser(repo.NextID(), "alice", "alice@example.com")
	if err := repo.Add(u); err != nil {
		t.Fatalf("Add: %v", err)
	}

	u.RefreshTokens["rid-1"] = time.Now().Add(time.Hour)
	if err := repo.Update(u); err != nil {
		t.Fatalf("Update: %v", err)
	}
	owner, ok := repo.FindByRefreshID("rid-1")
	if !ok || owner.Username != "alice" {
		t.Fatalf("expected refresh id to resolve to alice, got %v %v", owner, ok)
	}

	delete(u.RefreshTokens, "rid-1")
	u.RefreshTokens["rid-2"] = time.Now().Add(time.Hour)
	if err := repo.Update(u); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := repo.FindByRefreshID("rid-1"); ok {
		t.Fatal("consumed refresh id should leave the index")
	}
	if _, ok := repo.FindByRefreshID("rid-2"); !ok {
		t.Fatal("new refresh id should be indexed")
	}
}

func TestLookupsReturnCopies(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Add(newTestUser(repo.NextID(), "alice", "alice@example.com")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	first, _ := repo.Get("alice")
	first.Roles["admin"] = struct{}{}
	first.RefreshTokens["stray"] = time.Now()

	second, _ := repo.Get("alice")
	if _, ok := second.Roles["admin"]; ok {
		t.Fatal("mutating a lookup result leaked into the store")
	}
	if len(second.RefreshTokens) != 0 {
		t.Fatal("refresh map leaked into the store")
	}
}

func TestConcurrentMutationsKeepIndexesConsistent(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Add(newTestUser(repo.NextID(), "alice", "alice@example.com")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, ok := repo.Get("alice")
			if !ok {
				t.Error("user disappeared")
				return
			}
			u.Permissions["read:any"] = struct{}{}
			_ = repo.Update(u)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if u, ok := repo.FindByEmail("alice@example.com"); !ok || u.ID == 0 {
				t.Error("email index out of sync")
			}
		}()
	}
	wg.Wait()
}
