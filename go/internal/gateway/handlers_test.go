package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/trierg/go/internal/activerace"
	"github.com/mcdev12/trierg/go/internal/models"
	"github.com/mcdev12/trierg/go/internal/store"
)

const testSecret = "test-secret"

type testGateway struct {
	srv   *httptest.Server
	sync  *activerace.Synchronizer
	auth  *JWTAuthenticator
	clock *clockwork.FakeClock
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	mem := store.NewMemory()
	clock := clockwork.NewFakeClock()
	s := activerace.New(mem, mem, activerace.WithClock(clock))
	require.NoError(t, s.Subscribe(context.Background()))
	t.Cleanup(s.Close)

	cfg := DefaultConfig()
	cfg.JWTSecret = testSecret
	svc := NewService(cfg, s, mem, mem)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testGateway{srv: srv, sync: s, auth: svc.Auth(), clock: clock}
}

func (g *testGateway) request(t *testing.T, method, path string, role models.Role, body any) *http.Response {
	return g.requestAs(t, method, path, "op1", role, body)
}

func (g *testGateway) requestAs(t *testing.T, method, path, subject string, role models.Role, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, g.srv.URL+path, &buf)
	require.NoError(t, err)
	if role != models.RoleGuest {
		token, err := g.auth.GenerateToken(subject, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (g *testGateway) addPerson(t *testing.T, name string) models.Person {
	t.Helper()
	resp := g.request(t, http.MethodPost, "/api/persons", models.RoleUser, createPersonRequest{Name: name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	g.sync.Flush()
	return decodeBody[models.Person](t, resp)
}

func TestCreatePersonRequiresWriteAccess(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodPost, "/api/persons", models.RoleGuest, createPersonRequest{Name: "Alice"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = g.request(t, http.MethodGet, "/api/persons", models.RoleGuest, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[[]models.Person](t, resp))
}

func TestRaceLifecycleOverHTTP(t *testing.T) {
	g := newTestGateway(t)
	p := g.addPerson(t, "Alice")

	resp := g.request(t, http.MethodPost, "/api/races", models.RoleUser, startRaceRequest{PersonID: p.ID.String()})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	g.sync.Flush()
	race := decodeBody[models.ActiveRace](t, resp)

	// A second race for the same person is rejected.
	resp = g.request(t, http.MethodPost, "/api/races", models.RoleUser, startRaceRequest{PersonID: p.ID.String()})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	times := []time.Duration{
		15 * time.Minute,
		18*time.Minute + 20*time.Second,
		8*time.Minute + 20*time.Second,
	}
	var last splitResponse
	for _, d := range times {
		g.clock.Advance(d)
		resp = g.request(t, http.MethodPost, "/api/races/"+race.ID.String()+"/split", models.RoleUser, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		last = decodeBody[splitResponse](t, resp)
		// Let the background write land before the next split reads the cache.
		g.sync.Flush()
	}

	assert.True(t, last.Completed)
	assert.Equal(t, models.DisciplineRowing, last.Discipline)
	assert.Equal(t, times[2].Milliseconds(), last.TimeMs)

	// The finished race is gone; another split finds nothing to act on.
	resp = g.request(t, http.MethodPost, "/api/races/"+race.ID.String()+"/split", models.RoleUser, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = g.request(t, http.MethodGet, "/api/results", models.RoleGuest, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decodeBody[[]models.RaceResult](t, resp)
	require.Len(t, results, 1)
	assert.Equal(t, "Alice", results[0].PersonName)
}

func TestUpdateEstimatesValidation(t *testing.T) {
	g := newTestGateway(t)
	p := g.addPerson(t, "Alice")

	resp := g.request(t, http.MethodPost, "/api/races", models.RoleUser, startRaceRequest{PersonID: p.ID.String()})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	g.sync.Flush()
	race := decodeBody[models.ActiveRace](t, resp)

	bad := "not-a-time"
	resp = g.request(t, http.MethodPut, "/api/races/"+race.ID.String()+"/estimates", models.RoleUser, estimateInput{Treadmill: &bad})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	good := "15:00"
	resp = g.request(t, http.MethodPut, "/api/races/"+race.ID.String()+"/estimates", models.RoleUser, estimateInput{Treadmill: &good})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	est := decodeBody[models.EstimatedSplits](t, resp)
	require.NotNil(t, est.Treadmill)
	assert.Equal(t, 15*time.Minute, *est.Treadmill)
}

func TestMassStart(t *testing.T) {
	g := newTestGateway(t)
	alice := g.addPerson(t, "Alice")
	bob := g.addPerson(t, "Bob")

	est := "16:00"
	resp := g.request(t, http.MethodPost, "/api/races/mass-start", models.RoleUser, massStartRequest{
		Entries: []massStartEntry{
			{PersonID: alice.ID.String(), Estimates: &estimateInput{Treadmill: &est}},
			{PersonID: bob.ID.String()},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g.sync.Flush()

	out := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(2), out["started"])
	assert.Len(t, g.sync.Cache().ActiveRaces(), 2)
}

func TestLeaderboardSortParams(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodGet, "/api/leaderboard?sort=bogus", models.RoleGuest, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = g.request(t, http.MethodGet, "/api/leaderboard?sort=treadmill&desc=true", models.RoleGuest, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	board := decodeBody[leaderboardResponse](t, resp)
	assert.True(t, board.Descending)
	assert.Empty(t, board.Rows)
}

func TestRaceDetailDeltas(t *testing.T) {
	g := newTestGateway(t)
	p := g.addPerson(t, "Alice")

	est := "15:00"
	resp := g.request(t, http.MethodPost, "/api/races", models.RoleUser, startRaceRequest{
		PersonID:  p.ID.String(),
		Estimates: &estimateInput{Treadmill: &est},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	g.sync.Flush()
	race := decodeBody[models.ActiveRace](t, resp)

	// 14 minutes into a 15-minute treadmill estimate: one minute ahead.
	g.clock.Advance(14 * time.Minute)
	resp = g.request(t, http.MethodGet, "/api/races/"+race.ID.String(), models.RoleGuest, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decodeBody[raceDetailResponse](t, resp)

	assert.Equal(t, (14 * time.Minute).Milliseconds(), detail.ElapsedMs)
	require.NotNil(t, detail.SegmentDelta)
	assert.True(t, detail.SegmentDelta.Ahead)
	assert.Equal(t, (-time.Minute).Milliseconds(), detail.SegmentDelta.BehindMs)
	// Blended total needs every discipline covered; only one estimate here.
	assert.Nil(t, detail.TotalDelta)
	assert.Empty(t, detail.SplitDeltas)
}

func TestStoredRoleOverridesTokenClaim(t *testing.T) {
	g := newTestGateway(t)

	operator := decodeBody[models.User](t, g.request(t, http.MethodPost, "/api/users", models.RoleAdmin, upsertUserRequest{
		Name: "Grace",
		Role: models.RoleAdmin,
	}))
	g.sync.Flush()

	// The token only claims USER, but the stored account says ADMIN.
	resp := g.requestAs(t, http.MethodGet, "/api/users", operator.ID.String(), models.RoleUser, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Without a stored account the token claim stands.
	resp = g.request(t, http.MethodGet, "/api/users", models.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestImportRequiresAdmin(t *testing.T) {
	g := newTestGateway(t)

	req, err := http.NewRequest(http.MethodPost, g.srv.URL+"/api/results/import", strings.NewReader(""))
	require.NoError(t, err)
	token, err := g.auth.GenerateToken("op1", models.RoleUser, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
