// Package genealogy assembles person/relation graphs and per-vault statistics
// on top of the stores. Every entry point takes the acting user and answers
// model.ErrNotFound for vaults and persons outside that user's reach.
package genealogy

import (
	"context"
	"fmt"

	"github.com/dukerupert/nonna/internal/model"
)

type VaultAccess interface {
	CanAccess(ctx context.Context, userID int64, vaultID string) error
}

type Persons interface {
	Detail(ctx context.Context, userID int64, id string) (*model.PersonDetail, error)
	InVault(ctx context.Context, vaultID string) ([]model.Person, error)
	ByIDs(ctx context.Context, userID int64, ids []string) ([]model.Person, error)
	VaultPersonStats(ctx context.Context, vaultID string) (living, deceased int, ages []int, err error)
}

type Relations interface {
	TouchingVault(ctx context.Context, vaultID string) ([]model.Relation, error)
	Incident(ctx context.Context, personID string) ([]model.Relation, error)
	CountByType(ctx context.Context, vaultID string) (map[model.RelationType]int, error)
}

type Assembler struct {
	vaults    VaultAccess
	persons   Persons
	relations Relations
}

func NewAssembler(vaults VaultAccess, persons Persons, relations Relations) *Assembler {
	return &Assembler{vaults: vaults, persons: persons, relations: relations}
}

// Graph returns every person of vaultID, ordered by last then first name, and
// every relation with at least one endpoint in it. After the access check it
// issues exactly two queries.
func (a *Assembler) Graph(ctx context.Context, userID int64, vaultID string) (*model.Graph, error) {
	if err := a.vaults.CanAccess(ctx, userID, vaultID); err != nil {
		return nil, err
	}
	persons, err := a.persons.InVault(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("graph persons: %w", err)
	}
	relations, err := a.relations.TouchingVault(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("graph relations: %w", err)
	}
	return &model.Graph{Persons: persons, Relations: relations}, nil
}

// FamilyTree returns the person, the persons at the far end of each relation
// touching it and those relations. Direction and label are ignored and
// nothing beyond one hop is inferred. Far-end persons in vaults hidden from
// userID are omitted; their relations are kept.
func (a *Assembler) FamilyTree(ctx context.Context, userID int64, personID string) (*model.FamilyTree, error) {
	root, err := a.persons.Detail(ctx, userID, personID)
	if err != nil {
		return nil, err
	}
	relations, err := a.relations.Incident(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("family tree relations: %w", err)
	}

	seen := map[string]bool{personID: true}
	var ids []string
	for _, r := range relations {
		other := r.Other(personID)
		if seen[other] {
			continue
		}
		seen[other] = true
		ids = append(ids, other)
	}
	members, err := a.persons.ByIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("family tree members: %w", err)
	}
	return &model.FamilyTree{Person: *root, FamilyMembers: members, Relations: relations}, nil
}

// Stats computes person and relation counts for vaultID. Every relation type
// and every generation bucket is present, zero or not.
func (a *Assembler) Stats(ctx context.Context, userID int64, vaultID string) (*model.GenealogyStats, error) {
	if err := a.vaults.CanAccess(ctx, userID, vaultID); err != nil {
		return nil, err
	}
	living, deceased, ages, err := a.persons.VaultPersonStats(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("person stats: %w", err)
	}
	counts, err := a.relations.CountByType(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("relation stats: %w", err)
	}

	stats := &model.GenealogyStats{
		TotalPersons:    living + deceased,
		LivingPersons:   living,
		DeceasedPersons: deceased,
		ByRelationType:  make(map[model.RelationType]int, len(model.RelationTypes)),
		ByGeneration:    Buckets(ages),
	}
	for _, t := range model.RelationTypes {
		stats.ByRelationType[t] = counts[t]
		stats.TotalRelations += counts[t]
	}
	return stats, nil
}

// Buckets counts ages per generation, with all four buckets present.
func Buckets(ages []int) map[string]int {
	out := make(map[string]int, len(model.Generations))
	for _, g := range model.Generations {
		out[g] = 0
	}
	for _, age := range ages {
		out[model.Generation(age)]++
	}
	return out
}
