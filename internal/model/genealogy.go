package model

import (
	"strings"
	"time"
)

type RelationType string

const (
	RelationParent      RelationType = "parent"
	RelationChild       RelationType = "child"
	RelationSibling     RelationType = "sibling"
	RelationSpouse      RelationType = "spouse"
	RelationGrandparent RelationType = "grandparent"
	RelationGrandchild  RelationType = "grandchild"
	RelationUncleAunt   RelationType = "uncle_aunt"
	RelationNephewNiece RelationType = "nephew_niece"
	RelationCousin      RelationType = "cousin"
	RelationOther       RelationType = "other"
)

// RelationTypes lists every declared relation type in display order.
var RelationTypes = []RelationType{
	RelationParent, RelationChild, RelationSibling, RelationSpouse,
	RelationGrandparent, RelationGrandchild, RelationUncleAunt,
	RelationNephewNiece, RelationCousin, RelationOther,
}

func (t RelationType) Valid() bool {
	for _, rt := range RelationTypes {
		if rt == t {
			return true
		}
	}
	return false
}

type Person struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	MiddleName    string    `json:"middle_name"`
	FullName      string    `json:"full_name"`
	BirthDate     *Date     `json:"birth_date"`
	DeathDate     *Date     `json:"death_date"`
	BirthPlace    string    `json:"birth_place"`
	DeathPlace    string    `json:"death_place"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	PhotoURL      string    `json:"photo"`
	Documents     []string  `json:"documents"`
	Occupation    string    `json:"occupation"`
	Notes         string    `json:"notes"`
	IsLiving      bool      `json:"is_living"`
	Age           *int      `json:"age"`
	VaultID       string    `json:"vault"`
	VaultName     string    `json:"vault_name"`
	CreatedBy     int64     `json:"created_by"`
	CreatedByName string    `json:"created_by_name"`
	MemoriesCount int       `json:"memories_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FullName joins the non-empty name parts with single spaces.
func FullName(first, middle, last string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{first, middle, last} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Age is the whole number of 365-day years from birth to death, or to now
// when death is unknown. Leap days make it drift from calendar age; ok is
// false without a birth date.
func Age(birth, death *Date, now time.Time) (age int, ok bool) {
	if birth == nil {
		return 0, false
	}
	end := NewDate(now.Year(), now.Month(), now.Day())
	if death != nil {
		end = *death
	}
	// Duration saturates near 292 years, so count seconds instead.
	days := int((end.Unix() - birth.Unix()) / 86400)
	if days < 0 {
		return 0, true
	}
	return days / 365, true
}

// Generation buckets an age into children, adults, middle_aged or seniors.
func Generation(age int) string {
	switch {
	case age < 18:
		return GenerationChildren
	case age < 40:
		return GenerationAdults
	case age < 65:
		return GenerationMiddleAged
	default:
		return GenerationSeniors
	}
}

type Relation struct {
	ID           string       `json:"id"`
	Person1ID    string       `json:"person1"`
	Person1Name  string       `json:"person1_name"`
	Person2ID    string       `json:"person2"`
	Person2Name  string       `json:"person2_name"`
	RelationType RelationType `json:"relation_type"`
	StartDate    *Date        `json:"start_date"`
	EndDate      *Date        `json:"end_date"`
	Notes        string       `json:"notes"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Other returns the endpoint of r that is not personID.
func (r Relation) Other(personID string) string {
	if r.Person1ID == personID {
		return r.Person2ID
	}
	return r.Person1ID
}

const (
	PersonMemorySubject      = "subject"
	PersonMemoryMentioned    = "mentioned"
	PersonMemoryPhotographer = "photographer"
	PersonMemoryNarrator     = "narrator"
)

type PersonMemory struct {
	ID          string     `json:"id"`
	PersonID    string     `json:"person"`
	MemoryID    string     `json:"memory"`
	MemoryTitle string     `json:"memory_title"`
	MemoryType  MemoryType `json:"memory_type"`
	MemoryPhoto string     `json:"memory_photo"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PersonDetail adds the incident relations and linked memories to a Person.
type PersonDetail struct {
	Person
	RelationsFrom []Relation     `json:"relations_from"`
	RelationsTo   []Relation     `json:"relations_to"`
	Memories      []PersonMemory `json:"memories"`
}

// Graph is every person of a vault plus every relation touching one of them.
type Graph struct {
	Persons   []Person   `json:"persons"`
	Relations []Relation `json:"relations"`
}

// FamilyTree is the 1-hop neighbourhood of a person.
type FamilyTree struct {
	Person        PersonDetail `json:"person"`
	FamilyMembers []Person     `json:"family_members"`
	Relations     []Relation   `json:"relations"`
}

const (
	GenerationChildren   = "children"
	GenerationAdults     = "adults"
	GenerationMiddleAged = "middle_aged"
	GenerationSeniors    = "seniors"
)

var Generations = []string{GenerationChildren, GenerationAdults, GenerationMiddleAged, GenerationSeniors}

type GenealogyStats struct {
	TotalPersons    int                  `json:"total_persons"`
	LivingPersons   int                  `json:"living_persons"`
	DeceasedPersons int                  `json:"deceased_persons"`
	TotalRelations  int                  `json:"total_relations"`
	ByRelationType  map[RelationType]int `json:"by_relation_type"`
	ByGeneration    map[string]int       `json:"by_generation"`
}
