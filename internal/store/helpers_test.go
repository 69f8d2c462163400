package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/nonna/internal/database"
	"github.com/dukerupert/nonna/internal/model"
)

type testEnv struct {
	db            *sql.DB
	users         *UserStore
	vaults        *VaultStore
	persons       *PersonStore
	relations     *RelationStore
	personMemory  *PersonMemoryStore
	memories      *MemoryStore
	phrases       *PhraseStore
	conversations *ConversationStore
	tokens        *RefreshTokenStore
}

func setupTestDB(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return newTestEnv(db)
}

func newTestEnv(db *sql.DB) *testEnv {
	return &testEnv{
		db:            db,
		users:         NewUserStore(db),
		vaults:        NewVaultStore(db),
		persons:       NewPersonStore(db),
		relations:     NewRelationStore(db),
		personMemory:  NewPersonMemoryStore(db),
		memories:      NewMemoryStore(db),
		phrases:       NewPhraseStore(db),
		conversations: NewConversationStore(db),
		tokens:        NewRefreshTokenStore(db),
	}
}

func (e *testEnv) user(t *testing.T, name string) *model.User {
	t.Helper()
	u, err := e.users.Create(context.Background(), name+"@example.com", name, name, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func (e *testEnv) vault(t *testing.T, owner *model.User, name string) *model.Vault {
	t.Helper()
	v, err := e.vaults.Create(context.Background(), owner.ID, VaultInput{Name: name})
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	return v
}

func (e *testEnv) person(t *testing.T, by *model.User, vaultID, first, last string) *model.Person {
	t.Helper()
	p, err := e.persons.Create(context.Background(), by.ID, PersonInput{
		FirstName: first, LastName: last, VaultID: vaultID, IsLiving: true,
	})
	if err != nil {
		t.Fatalf("create person: %v", err)
	}
	return p
}

func (e *testEnv) memory(t *testing.T, by *model.User, vaultID, title string) *model.Memory {
	t.Helper()
	m, err := e.memories.Create(context.Background(), by.ID, MemoryInput{
		Title: title, Type: model.MemoryPhoto, VaultID: vaultID,
	})
	if err != nil {
		t.Fatalf("create memory: %v", err)
	}
	return m
}

func (e *testEnv) phrase(t *testing.T, by *model.User, vaultID, text string) *model.Phrase {
	t.Helper()
	p, err := e.phrases.Create(context.Background(), by.ID, PhraseInput{
		Text: text, Category: model.CategoryGreeting, VaultID: vaultID,
	})
	if err != nil {
		t.Fatalf("create phrase: %v", err)
	}
	return p
}
