package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/nonna/internal/auth"
	"github.com/dukerupert/nonna/internal/blob"
	"github.com/dukerupert/nonna/internal/database"
	"github.com/dukerupert/nonna/internal/respond"
)

type testServer struct {
	srv     *Server
	handler http.Handler
	media   string
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	media := t.TempDir()
	disk, err := blob.NewDiskStore(media, "http://nonna.test")
	require.NoError(t, err)
	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = 1 << 20
	}
	opts.MediaDir = media

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, auth.NewIssuer("test-secret", time.Hour, 24*time.Hour), disk, opts, logger)
	return &testServer{srv: srv, handler: srv.Router(), media: media}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type session struct {
	token   string
	refresh string
	userID  int64
}

func (ts *testServer) register(t *testing.T, name string) session {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":            name + "@example.com",
		"username":         name,
		"name":             strings.ToUpper(name[:1]) + name[1:],
		"password":         "correct horse battery",
		"password_confirm": "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody[struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}](t, rec)
	return session{token: body.AccessToken, refresh: body.RefreshToken, userID: body.User.ID}
}

func (ts *testServer) create(t *testing.T, path, token string, body any) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, path, token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[struct {
		ID string `json:"id"`
	}](t, rec).ID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(t, http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, http.StatusNotFound, decodeBody[respond.ErrorResponse](t, rec).Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, Options{})
	for _, path := range []string{"/api/vaults", "/api/genealogy/persons", "/api/memories", "/api/conversation/phrases", "/api/auth/profile"} {
		rec := ts.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := ts.do(t, http.MethodGet, "/api/vaults", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccountFlow(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.register(t, "alice")

	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "alice@example.com", "username": "alice2", "password": "correct horse battery", "password_confirm": "correct horse battery",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "x@example.com", "username": "x", "password": "correct horse battery", "password_confirm": "nope",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody[respond.ErrorResponse](t, rec).Fields, "password_confirm")

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong password"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ALICE@example.com", "password": "correct horse battery"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": alice.refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	access := decodeBody[map[string]string](t, rec)["access_token"]
	require.NotEmpty(t, access)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/auth/profile", access, nil).Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": alice.token})
	require.Equal(t, http.StatusUnauthorized, rec.Code, "access token must not refresh")

	rec = ts.do(t, http.MethodPut, "/api/auth/profile", alice.token, map[string]string{"phone": "555-0100", "birth_date": "1950-02-03"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profile := decodeBody[map[string]any](t, rec)
	require.Equal(t, "555-0100", profile["phone"])
	require.Equal(t, "1950-02-03", profile["birth_date"])
	require.Equal(t, "Alice", profile["name"])

	rec = ts.do(t, http.MethodPut, "/api/auth/profile", alice.token, map[string]string{"birth_date": "03/02/1950"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/api/auth/logout", alice.token, map[string]string{"refresh_token": alice.refresh}).Code)
	rec = ts.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": alice.refresh})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	ts := newTestServer(t, Options{LoginLimit: 2, LoginWindow: time.Minute})
	body := map[string]string{"email": "ghost@example.com", "password": "whatever1"}
	require.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/auth/login", "", body).Code)
	require.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/auth/login", "", body).Code)
	require.Equal(t, http.StatusTooManyRequests, ts.do(t, http.MethodPost, "/api/auth/login", "", body).Code)
}

// Alice owns a vault, Bob is a member and Carol is an outsider.
func TestVaultVisibilityScenario(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	carol := ts.register(t, "carol")

	vaultID := ts.create(t, "/api/vaults", alice.token, map[string]any{"name": "Rossi family"})
	rec := ts.do(t, http.MethodPost, "/api/vaults/"+vaultID+"/members", alice.token, map[string]string{"email": "bob@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "member", decodeBody[map[string]any](t, rec)["role"])

	personID := ts.create(t, "/api/genealogy/persons", alice.token, map[string]any{
		"first_name": "Maria", "last_name": "Rossi", "birth_date": "1931-05-20", "vault": vaultID,
	})

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/genealogy/persons/"+personID, bob.token, nil).Code)

	hidden := ts.do(t, http.MethodGet, "/api/genealogy/persons/"+personID, carol.token, nil)
	missing := ts.do(t, http.MethodGet, "/api/genealogy/persons/00000000-0000-0000-0000-000000000000", carol.token, nil)
	require.Equal(t, http.StatusNotFound, hidden.Code)
	require.Equal(t, missing.Code, hidden.Code)
	require.JSONEq(t, missing.Body.String(), hidden.Body.String())

	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/vaults/"+vaultID, carol.token, nil).Code)

	rec = ts.do(t, http.MethodGet, "/api/genealogy/persons", carol.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/genealogy/persons", carol.token, map[string]any{
		"first_name": "Intruder", "last_name": "X", "vault": vaultID,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "vault not found", decodeBody[respond.ErrorResponse](t, rec).Fields["vault"])

	rec = ts.do(t, http.MethodGet, "/api/genealogy/persons?vault="+vaultID, bob.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	persons := decodeBody[[]map[string]any](t, rec)
	require.Len(t, persons, 1)
	require.Equal(t, "Maria Rossi", persons[0]["full_name"])
}

func TestVaultJoinPublic(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.register(t, "alice")
	dan := ts.register(t, "dan")

	public := ts.create(t, "/api/vaults", alice.token, map[string]any{"name": "Open", "is_public": true})
	private := ts.create(t, "/api/vaults", alice.token, map[string]any{"name": "Closed"})

	rec := ts.do(t, http.MethodPost, "/api/vaults/join", dan.token, map[string]string{"vault_id": public})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "viewer", decodeBody[map[string]any](t, rec)["role"])
	require.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/vaults/join", dan.token, map[string]string{"vault_id": public}).Code)
	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/vaults/join", dan.token, map[string]string{"vault_id": private}).Code)

	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/api/vaults/"+public+"/leave", dan.token, nil).Code)
	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/vaults/"+public, dan.token, nil).Code)
}

func TestValidationEnvelope(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.register(t, "alice")

	rec := ts.do(t, http.MethodPost, "/api/genealogy/persons", alice.token, map[string]any{"birth_date": "yesterday"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[respond.ErrorResponse](t, rec)
	require.Equal(t, "Bad Request", body.Error)
	require.Equal(t, 400, body.Code)
	require.Contains(t, body.Fields, "first_name")
	require.Contains(t, body.Fields, "last_name")
	require.Contains(t, body.Fields, "vault")
	require.Contains(t, body.Fields, "birth_date")

	req := httptest.NewRequest(http.MethodPost, "/api/vaults", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+alice.token)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLikeToggle(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.register(t, "alice")
	vaultID := ts.create(t, "/api/vaults", alice.token, map[string]any{"name": "Rossi"})
	memoryID := ts.create(t, "/api/memories", alice.token, map[string]any{
		"title": "Sunday lunch", "type": "photo", "vault": vaultID, "tags": []string{"food"},
	})

	path := "/api/memories/" + memoryID + "/like"
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, path, alice.token, nil).Code)
	rec := ts.do(t, http.MethodPost, path, alice.token, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "memory already liked", decodeBody[respond.ErrorResponse](t, rec).Message)

	rec = ts.do(t, http.MethodGet, "/api/memories/"+memoryID, alice.token, nil)
	detail := decodeBody[map[string]any](t, rec)
	require.EqualValues(t, 1, detail["likes_count"])
	require.Equal(t, true, detail["is_liked"])

	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, path, alice.token, nil).Code)
	rec = ts.do(t, http.MethodDelete, path, alice.token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "memory not liked", decodeBody[respond.ErrorResponse](t, rec).Message)
}

func TestCommentsAuthorOnly(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	vaultID := ts.create(t, "/api/vaults", alice.token, map[string]any{"name": "Rossi"})
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/vaults/"+vaultID+"/members", alice.token, map[string]any{"user_id": bob.userID}).Code)
	memoryID := ts.create(t, "/api/memories", alice.token, map[string]any{"title": "Recipe", "type": "recipe", "vault": vaultID})

	commentID := ts.create(t, "/api/memories/"+memoryID+"/comments", bob.token, map[string]string{"text": "Delizioso"})
	path := "/api/memories/" + memoryID + "/comments/" + commentID

	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPut, path, alice.token, map[string]string{"text": "edited"}).Code)
	rec := ts.do(t, http.MethodPut, path, bob.token, map[string]string{"text": "Buonissimo"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Buonissimo", decodeBody[map[string]any](t, rec)["text"])
	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, path, bob.token, nil).Code)
}

func TestGenealogyEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.register(t, "alice")
	vaultID := ts.create(t, "/api/vaults", alice.token, map[string]any{"name": "Rossi"})

	nonna := ts.create(t, "/api/genealogy/persons", alice.token, map[string]any{"first_name": "Maria", "last_name": "Rossi", "birth_date": "1931-05-20", "vault": vaultID})
	mamma := ts.create(t, "/api/genealogy/persons", alice.token, map[string]any{"first_name": "Lucia", "last_name": "Rossi", "birth_date": "1960-01-10", "vault": vaultID})

	ts.create(t, "/api/genealogy/relations", alice.token, map[string]any{"person1": nonna, "person2": mamma, "relation_type": "parent"})
	rec := ts.do(t, http.MethodPost, "/api/genealogy/relations", alice.token, map[string]any{"person1": nonna, "person2": nonna, "relation_type": "parent"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/genealogy/relations", alice.token, map[string]any{"person1": nonna, "person2": mamma, "relation_type": "cousin3"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody[respond.ErrorResponse](t, rec).Fields, "relation_type")

	rec = ts.do(t, http.MethodGet, "/api/genealogy/vaults/"+vaultID+"/graph", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	graph := decodeBody[struct {
		Persons   []map[string]any `json:"persons"`
		Relations []map[string]any `json:"relations"`
	}](t, rec)
	require.Len(t, graph.Persons, 2)
	require.Len(t, graph.Relations, 1)

	rec = ts.do(t, http.MethodGet, "/api/genealogy/persons/"+mamma+"/family-tree", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decodeBody[struct {
		FamilyMembers []map[string]any `json:"family_members"`
	}](t, rec)
	require.Len(t, tree.FamilyMembers, 1)
	require.Equal(t, nonna, tree.FamilyMembers[0]["id"])

	rec = ts.do(t, http.MethodGet, "/api/genealogy/vaults/"+vaultID+"/stats", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[struct {
		TotalPersons   int            `json:"total_persons"`
		ByRelationType map[string]int `json:"by_relation_type"`
		ByGeneration   map[string]int `json:"by_generation"`
	}](t, rec)
	require.Equal(t, 2, stats.TotalPersons)
	require.Equal(t, 1, stats.ByRelationType["parent"])
	require.Contains(t, stats.ByRelationType, "sibling")
	require.Equal(t, 2, stats.ByGeneration["seniors"]+stats.ByGeneration["middle_aged"])

	rec = ts.do(t, http.MethodPatch, "/api/genealogy/persons/"+mamma, alice.token, map[string]any{"occupation": "teacher"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[map[string]any](t, rec)
	require.Equal(t, "teacher", updated["occupation"])
	require.Equal(t, "Lucia", updated["first_name"])
}

func TestConversationEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.register(t, "alice")
	vaultID := ts.create(t, "/api/vaults", alice.token, map[string]any{"name": "Rossi"})

	p1 := ts.create(t, "/api/conversation/phrases", alice.token, map[string]any{"text": "Mangia!", "category": "food", "vault": vaultID})
	p2 := ts.create(t, "/api/conversation/phrases", alice.token, map[string]any{"text": "Ti voglio bene", "category": "love", "vault": vaultID})

	rec := ts.do(t, http.MethodPost, "/api/conversation/phrases/"+p1+"/play", alice.token, map[string]any{"duration_played": 2.5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodGet, "/api/conversation/phrases/"+p1, alice.token, nil)
	require.EqualValues(t, 1, decodeBody[map[string]any](t, rec)["usage_count"])

	rec = ts.do(t, http.MethodPost, "/api/conversation/phrases/"+p2+"/favorite", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody[map[string]any](t, rec)["is_favorite"])

	rec = ts.do(t, http.MethodGet, "/api/conversation/phrases?is_favorite=true", alice.token, nil)
	require.Len(t, decodeBody[[]map[string]any](t, rec), 1)
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/conversation/phrases?is_favorite=maybe", alice.token, nil).Code)

	sessionID := ts.create(t, "/api/conversation/sessions", alice.token, map[string]any{"name": "Sunday", "phrases": []string{p2, p1}, "vault": vaultID})
	rec = ts.do(t, http.MethodGet, "/api/conversation/sessions/"+sessionID, alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[struct {
		Phrases []struct {
			ID string `json:"id"`
		} `json:"phrases"`
	}](t, rec)
	require.Len(t, detail.Phrases, 2)
	require.Equal(t, p2, detail.Phrases[0].ID)

	rec = ts.do(t, http.MethodPost, "/api/conversation/sessions/"+sessionID+"/playbacks", alice.token, map[string]any{"phrases_played": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/conversation/vaults/"+vaultID+"/random?count=5", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]map[string]any](t, rec), 2)
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/conversation/vaults/"+vaultID+"/random?count=0", alice.token, nil).Code)

	rec = ts.do(t, http.MethodGet, "/api/conversation/vaults/"+vaultID+"/stats", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[map[string]any](t, rec)
	require.EqualValues(t, 2, stats["total_phrases"])
	require.EqualValues(t, 1, stats["total_playbacks"])
}

// smallest valid PNG signature plus IHDR chunk start
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func (ts *testServer) upload(t *testing.T, path, token, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestUploadPhoto(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.register(t, "alice")

	rec := ts.upload(t, "/api/memories/uploads/photo", alice.token, "beach.png", pngHeader)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	url := decodeBody[map[string]string](t, rec)["url"]
	require.True(t, strings.HasPrefix(url, "http://nonna.test/media/memories/photos/"), url)
	require.True(t, strings.HasSuffix(url, ".png"), url)

	get := ts.do(t, http.MethodGet, strings.TrimPrefix(url, "http://nonna.test"), "", nil)
	require.Equal(t, http.StatusOK, get.Code)
	require.Equal(t, pngHeader, get.Body.Bytes())

	rec = ts.upload(t, "/api/memories/uploads/photo", alice.token, "notes.png", []byte("just some text"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody[respond.ErrorResponse](t, rec).Fields, "file")

	rec = ts.upload(t, "/api/memories/uploads/audio", alice.token, "beach.png", pngHeader)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSocketReceivesVaultChanges(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.register(t, "alice")
	vaultID := ts.create(t, "/api/vaults", alice.token, map[string]any{"name": "Rossi"})

	httpSrv := httptest.NewServer(ts.handler)
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(httpSrv.URL, "http")+"/ws?vault_id="+vaultID+"&access_token="+alice.token, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return ts.srv.Hub().ClientCount(vaultID) == 1 }, time.Second, 10*time.Millisecond)

	personID := ts.create(t, "/api/genealogy/persons", alice.token, map[string]any{"first_name": "Maria", "last_name": "Rossi", "vault": vaultID})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "person_created", msg.Type)
	require.Equal(t, personID, msg.ID)
}

type sentNotice struct {
	kind, to, from, subject, role string
}

type recordingNotifier struct {
	sent []sentNotice
	err  error
}

func (n *recordingNotifier) SendVaultAdded(_ context.Context, to, inviter, vaultName, role string) error {
	n.sent = append(n.sent, sentNotice{kind: "vault", to: to, from: inviter, subject: vaultName, role: role})
	return n.err
}

func (n *recordingNotifier) SendMemoryShared(_ context.Context, to, sharer, title, _ string) error {
	n.sent = append(n.sent, sentNotice{kind: "share", to: to, from: sharer, subject: title})
	return n.err
}

func TestNotificationsOnMemberAndShare(t *testing.T) {
	notifier := &recordingNotifier{}
	ts := newTestServer(t, Options{Notifier: notifier})
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	vaultID := ts.create(t, "/api/vaults", alice.token, map[string]any{"name": "Rossi family"})
	ts.create(t, "/api/vaults/"+vaultID+"/members", alice.token, map[string]any{"user_id": bob.userID, "role": "admin"})
	memoryID := ts.create(t, "/api/memories", alice.token, map[string]any{
		"title": "Sunday lunch", "type": "photo", "vault": vaultID,
	})
	ts.create(t, "/api/memory-shares", alice.token, map[string]any{"memory": memoryID, "shared_with": bob.userID})

	require.Equal(t, []sentNotice{
		{kind: "vault", to: "bob@example.com", from: "Alice", subject: "Rossi family", role: "admin"},
		{kind: "share", to: "bob@example.com", from: "Alice", subject: "Sunday lunch"},
	}, notifier.sent)
}

func TestNotificationFailureDoesNotFailRequest(t *testing.T) {
	ts := newTestServer(t, Options{Notifier: &recordingNotifier{err: errors.New("smtp down")}})
	alice := ts.register(t, "alice")
	ts.register(t, "bob")

	vaultID := ts.create(t, "/api/vaults", alice.token, map[string]any{"name": "Rossi"})
	rec := ts.do(t, http.MethodPost, "/api/vaults/"+vaultID+"/members", alice.token, map[string]string{"email": "bob@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
