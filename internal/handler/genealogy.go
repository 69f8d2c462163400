package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/nonna/internal/auth"
	"github.com/dukerupert/nonna/internal/genealogy"
	"github.com/dukerupert/nonna/internal/model"
	"github.com/dukerupert/nonna/internal/store"
	"github.com/dukerupert/nonna/internal/websocket"
)

type GenealogyHandler struct {
	base
	persons   *store.PersonStore
	relations *store.RelationStore
	links     *store.PersonMemoryStore
	assembler *genealogy.Assembler
}

func NewGenealogyHandler(ps *store.PersonStore, rs *store.RelationStore, ls *store.PersonMemoryStore, a *genealogy.Assembler, hub *websocket.Hub, logger *slog.Logger) *GenealogyHandler {
	return &GenealogyHandler{base: base{hub: hub, logger: logger}, persons: ps, relations: rs, links: ls, assembler: a}
}

type personRequest struct {
	FirstName  string   `json:"first_name" validate:"required,max=100"`
	LastName   string   `json:"last_name" validate:"required,max=100"`
	MiddleName string   `json:"middle_name" validate:"max=100"`
	BirthDate  string   `json:"birth_date" validate:"omitempty,date"`
	DeathDate  string   `json:"death_date" validate:"omitempty,date"`
	BirthPlace string   `json:"birth_place" validate:"max=200"`
	DeathPlace string   `json:"death_place" validate:"max=200"`
	Email      string   `json:"email" validate:"omitempty,email"`
	Phone      string   `json:"phone" validate:"max=20"`
	Address    string   `json:"address"`
	PhotoURL   string   `json:"photo" validate:"max=500"`
	Documents  []string `json:"documents"`
	Occupation string   `json:"occupation" validate:"max=200"`
	Notes      string   `json:"notes"`
	IsLiving   bool     `json:"is_living"`
	VaultID    string   `json:"vault" validate:"required"`
}

func personRequestFrom(p *model.Person) personRequest {
	return personRequest{
		FirstName: p.FirstName, LastName: p.LastName, MiddleName: p.MiddleName,
		BirthDate: dateString(p.BirthDate), DeathDate: dateString(p.DeathDate),
		BirthPlace: p.BirthPlace, DeathPlace: p.DeathPlace,
		Email: p.Email, Phone: p.Phone, Address: p.Address, PhotoURL: p.PhotoURL,
		Documents: p.Documents, Occupation: p.Occupation, Notes: p.Notes,
		IsLiving: p.IsLiving, VaultID: p.VaultID,
	}
}

func (req personRequest) input() store.PersonInput {
	return store.PersonInput{
		FirstName:  strings.TrimSpace(req.FirstName),
		LastName:   strings.TrimSpace(req.LastName),
		MiddleName: strings.TrimSpace(req.MiddleName),
		BirthDate:  optDate(req.BirthDate),
		DeathDate:  optDate(req.DeathDate),
		BirthPlace: req.BirthPlace,
		DeathPlace: req.DeathPlace,
		Email:      req.Email,
		Phone:      req.Phone,
		Address:    req.Address,
		PhotoURL:   req.PhotoURL,
		Documents:  req.Documents,
		Occupation: req.Occupation,
		Notes:      req.Notes,
		IsLiving:   req.IsLiving,
		VaultID:    req.VaultID,
	}
}

type relationRequest struct {
	Person1ID    string `json:"person1" validate:"required"`
	Person2ID    string `json:"person2" validate:"required"`
	RelationType string `json:"relation_type" validate:"required,relation_type"`
	StartDate    string `json:"start_date" validate:"omitempty,date"`
	EndDate      string `json:"end_date" validate:"omitempty,date"`
	Notes        string `json:"notes"`
}

func (req relationRequest) input() store.RelationInput {
	return store.RelationInput{
		Person1ID:    req.Person1ID,
		Person2ID:    req.Person2ID,
		RelationType: model.RelationType(req.RelationType),
		StartDate:    optDate(req.StartDate),
		EndDate:      optDate(req.EndDate),
		Notes:        req.Notes,
	}
}

type personMemoryRequest struct {
	MemoryID string `json:"memory" validate:"required"`
	Role     string `json:"role" validate:"omitempty,person_role"`
}

type personRoleRequest struct {
	Role string `json:"role" validate:"required,person_role"`
}

// Persons

func (h *GenealogyHandler) ListPersons(w http.ResponseWriter, r *http.Request) {
	isLiving, err := queryBool(r, "is_living")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	persons, err := h.persons.List(r.Context(), auth.UserID(r.Context()), store.PersonFilter{
		VaultID:  q.Get("vault"),
		IsLiving: isLiving,
		Search:   q.Get("search"),
		Ordering: q.Get("ordering"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(persons))
}

func (h *GenealogyHandler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	req := personRequest{IsLiving: true}
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.persons.Create(r.Context(), auth.UserID(r.Context()), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(p.VaultID, "person", "created", p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (h *GenealogyHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	p, err := h.persons.Detail(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p.RelationsFrom = list(p.RelationsFrom)
	p.RelationsTo = list(p.RelationsTo)
	p.Memories = list(p.Memories)
	writeJSON(w, http.StatusOK, p)
}

func (h *GenealogyHandler) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	cur, err := h.persons.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := personRequestFrom(cur)
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.persons.Update(r.Context(), userID, id, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(p.VaultID, "person", "updated", p.ID)
	writeJSON(w, http.StatusOK, p)
}

func (h *GenealogyHandler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	cur, err := h.persons.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.persons.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(cur.VaultID, "person", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *GenealogyHandler) FamilyTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.assembler.FamilyTree(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tree.FamilyMembers = list(tree.FamilyMembers)
	tree.Relations = list(tree.Relations)
	tree.Person.RelationsFrom = list(tree.Person.RelationsFrom)
	tree.Person.RelationsTo = list(tree.Person.RelationsTo)
	tree.Person.Memories = list(tree.Person.Memories)
	writeJSON(w, http.StatusOK, tree)
}

// Person memories

func (h *GenealogyHandler) ListPersonMemories(w http.ResponseWriter, r *http.Request) {
	links, err := h.links.List(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(links))
}

func (h *GenealogyHandler) CreatePersonMemory(w http.ResponseWriter, r *http.Request) {
	var req personMemoryRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = model.PersonMemorySubject
	}
	userID := auth.UserID(r.Context())
	pm, err := h.links.Create(r.Context(), userID, r.PathValue("id"), req.MemoryID, req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.personChanged(r, pm.PersonID, "person_memory", "created", pm.ID)
	writeJSON(w, http.StatusCreated, pm)
}

func (h *GenealogyHandler) GetPersonMemory(w http.ResponseWriter, r *http.Request) {
	pm, err := h.links.Get(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), r.PathValue("link_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pm)
}

func (h *GenealogyHandler) UpdatePersonMemory(w http.ResponseWriter, r *http.Request) {
	var req personRoleRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	pm, err := h.links.UpdateRole(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), r.PathValue("link_id"), req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.personChanged(r, pm.PersonID, "person_memory", "updated", pm.ID)
	writeJSON(w, http.StatusOK, pm)
}

func (h *GenealogyHandler) DeletePersonMemory(w http.ResponseWriter, r *http.Request) {
	personID, linkID := r.PathValue("id"), r.PathValue("link_id")
	if err := h.links.Delete(r.Context(), auth.UserID(r.Context()), personID, linkID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.personChanged(r, personID, "person_memory", "deleted", linkID)
	w.WriteHeader(http.StatusNoContent)
}

// personChanged resolves the vault of personID before broadcasting. A lookup
// failure only costs the notification.
func (h *GenealogyHandler) personChanged(r *http.Request, personID, entity, action, id string) {
	p, err := h.persons.Get(r.Context(), auth.UserID(r.Context()), personID)
	if err != nil {
		h.logger.Warn("resolve person vault", "person_id", personID, "error", err)
		h.changed("", entity, action, id)
		return
	}
	h.changed(p.VaultID, entity, action, id)
}

// Relations

func (h *GenealogyHandler) ListRelations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rels, err := h.relations.List(r.Context(), auth.UserID(r.Context()), store.RelationFilter{
		RelationType: model.RelationType(q.Get("relation_type")),
		Person1ID:    q.Get("person1"),
		Person2ID:    q.Get("person2"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(rels))
}

func (h *GenealogyHandler) CreateRelation(w http.ResponseWriter, r *http.Request) {
	var req relationRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rel, err := h.relations.Create(r.Context(), auth.UserID(r.Context()), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.personChanged(r, rel.Person1ID, "relation", "created", rel.ID)
	writeJSON(w, http.StatusCreated, rel)
}

func (h *GenealogyHandler) GetRelation(w http.ResponseWriter, r *http.Request) {
	rel, err := h.relations.Get(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (h *GenealogyHandler) UpdateRelation(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	cur, err := h.relations.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := relationRequest{
		Person1ID: cur.Person1ID, Person2ID: cur.Person2ID,
		RelationType: string(cur.RelationType),
		StartDate:    dateString(cur.StartDate), EndDate: dateString(cur.EndDate),
		Notes: cur.Notes,
	}
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rel, err := h.relations.Update(r.Context(), userID, id, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.personChanged(r, rel.Person1ID, "relation", "updated", rel.ID)
	writeJSON(w, http.StatusOK, rel)
}

func (h *GenealogyHandler) DeleteRelation(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")
	cur, err := h.relations.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.relations.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.personChanged(r, cur.Person1ID, "relation", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// Vault views

func (h *GenealogyHandler) Graph(w http.ResponseWriter, r *http.Request) {
	g, err := h.assembler.Graph(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	g.Persons = list(g.Persons)
	g.Relations = list(g.Relations)
	writeJSON(w, http.StatusOK, g)
}

func (h *GenealogyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.assembler.Stats(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
