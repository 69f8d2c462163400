package genealogy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/nonna/internal/database"
	"github.com/dukerupert/nonna/internal/model"
	"github.com/dukerupert/nonna/internal/store"
)

type fixture struct {
	asm       *Assembler
	users     *store.UserStore
	vaults    *store.VaultStore
	persons   *store.PersonStore
	relations *store.RelationStore
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		users:     store.NewUserStore(db),
		vaults:    store.NewVaultStore(db),
		persons:   store.NewPersonStore(db),
		relations: store.NewRelationStore(db),
	}
	f.asm = NewAssembler(f.vaults, f.persons, f.relations)
	return f
}

func (f *fixture) user(t *testing.T, name string) *model.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), name+"@example.com", name, name, "hash")
	require.NoError(t, err)
	return u
}

func (f *fixture) vault(t *testing.T, owner *model.User) *model.Vault {
	t.Helper()
	v, err := f.vaults.Create(context.Background(), owner.ID, store.VaultInput{Name: owner.Name + " family"})
	require.NoError(t, err)
	return v
}

func (f *fixture) person(t *testing.T, by *model.User, vaultID, first, last string, birth *model.Date) *model.Person {
	t.Helper()
	p, err := f.persons.Create(context.Background(), by.ID, store.PersonInput{
		FirstName: first, LastName: last, VaultID: vaultID, BirthDate: birth, IsLiving: true,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) relate(t *testing.T, by *model.User, p1, p2 *model.Person, rt model.RelationType) *model.Relation {
	t.Helper()
	r, err := f.relations.Create(context.Background(), by.ID, store.RelationInput{
		Person1ID: p1.ID, Person2ID: p2.ID, RelationType: rt,
	})
	require.NoError(t, err)
	return r
}

func ids(persons []model.Person) []string {
	out := make([]string, len(persons))
	for i, p := range persons {
		out[i] = p.ID
	}
	return out
}

func TestGraphPersonsOrderedAndRelationsIncluded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	v := f.vault(t, alice)
	zeno := f.person(t, alice, v.ID, "Zeno", "Bianchi", nil)
	anna := f.person(t, alice, v.ID, "Anna", "Rossi", nil)
	bruno := f.person(t, alice, v.ID, "Bruno", "Bianchi", nil)
	f.relate(t, alice, anna, zeno, model.RelationSpouse)

	g, err := f.asm.Graph(ctx, alice.ID, v.ID)
	require.NoError(t, err)
	require.Equal(t, []string{bruno.ID, zeno.ID, anna.ID}, ids(g.Persons))
	require.Len(t, g.Relations, 1)
}

func TestGraphIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	v := f.vault(t, alice)
	a := f.person(t, alice, v.ID, "Ana", "Rossi", nil)
	b := f.person(t, alice, v.ID, "Luca", "Rossi", nil)
	c := f.person(t, alice, v.ID, "Mia", "Rossi", nil)
	f.relate(t, alice, a, b, model.RelationParent)
	f.relate(t, alice, b, c, model.RelationSibling)

	first, err := f.asm.Graph(ctx, alice.ID, v.ID)
	require.NoError(t, err)
	second, err := f.asm.Graph(ctx, alice.ID, v.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestGraphHiddenVaultIsNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice, carol := f.user(t, "alice"), f.user(t, "carol")
	v := f.vault(t, alice)

	_, err := f.asm.Graph(ctx, carol.ID, v.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.asm.Graph(ctx, carol.ID, "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.asm.Stats(ctx, carol.ID, v.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestFamilyTreeSymmetricOverEndpoints(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	v := f.vault(t, alice)
	p1 := f.person(t, alice, v.ID, "Ana", "Rossi", nil)
	p2 := f.person(t, alice, v.ID, "Luca", "Rossi", nil)
	f.relate(t, alice, p1, p2, model.RelationParent)

	tree, err := f.asm.FamilyTree(ctx, alice.ID, p2.ID)
	require.NoError(t, err)
	require.Equal(t, p2.ID, tree.Person.ID)
	require.Equal(t, []string{p1.ID}, ids(tree.FamilyMembers))
	require.Len(t, tree.Relations, 1)
	require.Equal(t, model.RelationParent, tree.Relations[0].RelationType)
}

func TestFamilyTreeHasNoTransitiveInference(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	v := f.vault(t, alice)
	grandma := f.person(t, alice, v.ID, "Nonna", "Rossi", nil)
	mother := f.person(t, alice, v.ID, "Maria", "Rossi", nil)
	child := f.person(t, alice, v.ID, "Luca", "Rossi", nil)
	f.relate(t, alice, grandma, mother, model.RelationParent)
	f.relate(t, alice, mother, child, model.RelationParent)
	// two relations to the same person collapse to one family member
	f.relate(t, alice, child, mother, model.RelationChild)

	tree, err := f.asm.FamilyTree(ctx, alice.ID, child.ID)
	require.NoError(t, err)
	require.Equal(t, []string{mother.ID}, ids(tree.FamilyMembers))
	require.Len(t, tree.Relations, 2)

	f.relate(t, alice, grandma, child, model.RelationGrandparent)
	tree, err = f.asm.FamilyTree(ctx, alice.ID, child.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{mother.ID, grandma.ID}, ids(tree.FamilyMembers))
}

func TestFamilyTreeHiddenPersonIsNotFound(t *testing.T) {
	f := setup(t)
	alice, carol := f.user(t, "alice"), f.user(t, "carol")
	v := f.vault(t, alice)
	p := f.person(t, alice, v.ID, "Ana", "Rossi", nil)

	_, err := f.asm.FamilyTree(context.Background(), carol.ID, p.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestCrossVaultRelationHidesForeignPerson(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	shared := f.vault(t, alice)
	private := f.vault(t, bob)
	_, err := f.vaults.AddMember(ctx, alice.ID, shared.ID, bob.ID, model.RoleMember)
	require.NoError(t, err)
	_, err = f.vaults.AddMember(ctx, alice.ID, shared.ID, carol.ID, model.RoleViewer)
	require.NoError(t, err)

	ana := f.person(t, alice, shared.ID, "Ana", "Rossi", nil)
	secret := f.person(t, bob, private.ID, "Secret", "Bianchi", nil)
	rel := f.relate(t, bob, ana, secret, model.RelationSibling)

	_, err = f.persons.Get(ctx, carol.ID, secret.ID)
	require.ErrorIs(t, err, model.ErrNotFound)

	tree, err := f.asm.FamilyTree(ctx, carol.ID, ana.ID)
	require.NoError(t, err)
	require.Empty(t, tree.FamilyMembers)
	require.Len(t, tree.Relations, 1)
	require.Equal(t, rel.ID, tree.Relations[0].ID)

	tree, err = f.asm.FamilyTree(ctx, bob.ID, ana.ID)
	require.NoError(t, err)
	require.Equal(t, []string{secret.ID}, ids(tree.FamilyMembers))

	g, err := f.asm.Graph(ctx, carol.ID, shared.ID)
	require.NoError(t, err)
	require.Equal(t, []string{ana.ID}, ids(g.Persons))
	require.Len(t, g.Relations, 1)
}

func TestStatsBucketsAndRelationTypes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	v := f.vault(t, alice)

	year := time.Now().Year()
	date := func(age int) *model.Date {
		d := model.NewDate(year-age-1, time.January, 1)
		return &d
	}
	kid := f.person(t, alice, v.ID, "Kid", "Rossi", date(8))
	f.person(t, alice, v.ID, "Adult", "Rossi", date(30))
	f.person(t, alice, v.ID, "Mid", "Rossi", date(50))
	nonna := f.person(t, alice, v.ID, "Nonna", "Rossi", date(80))
	f.person(t, alice, v.ID, "Unknown", "Rossi", nil)
	_, err := f.persons.Create(ctx, alice.ID, store.PersonInput{FirstName: "Late", LastName: "Rossi", VaultID: v.ID, IsLiving: false})
	require.NoError(t, err)
	f.relate(t, alice, nonna, kid, model.RelationGrandparent)

	stats, err := f.asm.Stats(ctx, alice.ID, v.ID)
	require.NoError(t, err)
	require.Equal(t, 6, stats.TotalPersons)
	require.Equal(t, 5, stats.LivingPersons)
	require.Equal(t, 1, stats.DeceasedPersons)
	require.Equal(t, 1, stats.TotalRelations)
	require.Len(t, stats.ByRelationType, len(model.RelationTypes))
	require.Equal(t, 1, stats.ByRelationType[model.RelationGrandparent])
	require.Equal(t, 0, stats.ByRelationType[model.RelationCousin])
	require.Equal(t, map[string]int{
		model.GenerationChildren:   1,
		model.GenerationAdults:     1,
		model.GenerationMiddleAged: 1,
		model.GenerationSeniors:    1,
	}, stats.ByGeneration)

	sum := 0
	for _, n := range stats.ByGeneration {
		sum += n
	}
	require.Equal(t, 4, sum, "buckets cover exactly the persons with a birth date")
}

func TestBucketsAlwaysPresent(t *testing.T) {
	b := Buckets(nil)
	require.Len(t, b, 4)
	for _, g := range model.Generations {
		require.Zero(t, b[g])
	}
}

type countingPersons struct {
	Persons
	calls int
}

func (c *countingPersons) InVault(ctx context.Context, vaultID string) ([]model.Person, error) {
	c.calls++
	return c.Persons.InVault(ctx, vaultID)
}

type countingRelations struct {
	Relations
	calls int
}

func (c *countingRelations) TouchingVault(ctx context.Context, vaultID string) ([]model.Relation, error) {
	c.calls++
	return c.Relations.TouchingVault(ctx, vaultID)
}

func TestGraphIssuesTwoQueries(t *testing.T) {
	f := setup(t)
	alice := f.user(t, "alice")
	v := f.vault(t, alice)
	for _, name := range []string{"A", "B", "C", "D"} {
		f.person(t, alice, v.ID, name, "Rossi", nil)
	}

	persons := &countingPersons{Persons: f.persons}
	relations := &countingRelations{Relations: f.relations}
	asm := NewAssembler(f.vaults, persons, relations)

	g, err := asm.Graph(context.Background(), alice.ID, v.ID)
	require.NoError(t, err)
	require.Len(t, g.Persons, 4)
	require.Equal(t, 1, persons.calls)
	require.Equal(t, 1, relations.calls)
}
