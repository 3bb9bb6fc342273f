package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mcdev12/trierg/go/internal/models"
)

// Memory is an in-process Store and Feed in one. It backs single-node
// operation and the test suites; semantics match the Postgres/NATS pair,
// including full-snapshot notifications after every committed write.
type Memory struct {
	mu          sync.RWMutex
	persons     map[uuid.UUID]models.Person
	results     map[uuid.UUID]models.RaceResult
	activeRaces map[uuid.UUID]models.ActiveRace
	users       map[uuid.UUID]models.User

	subMu   sync.Mutex
	nextSub int
	subs    map[Collection]map[int]SnapshotHandler
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		persons:     make(map[uuid.UUID]models.Person),
		results:     make(map[uuid.UUID]models.RaceResult),
		activeRaces: make(map[uuid.UUID]models.ActiveRace),
		users:       make(map[uuid.UUID]models.User),
		subs:        make(map[Collection]map[int]SnapshotHandler),
	}
}

func (m *Memory) UpsertPerson(ctx context.Context, p models.Person) error {
	m.mu.Lock()
	m.persons[p.ID] = p
	m.mu.Unlock()
	m.notify(ctx, CollectionPersons)
	return nil
}

func (m *Memory) DeletePerson(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	delete(m.persons, id)
	m.mu.Unlock()
	m.notify(ctx, CollectionPersons)
	return nil
}

func (m *Memory) UpsertUser(ctx context.Context, u models.User) error {
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
	m.notify(ctx, CollectionUsers)
	return nil
}

func (m *Memory) UpsertActiveRace(ctx context.Context, r models.ActiveRace) error {
	m.mu.Lock()
	m.activeRaces[r.ID] = cloneRace(r)
	m.mu.Unlock()
	m.notify(ctx, CollectionActiveRaces)
	return nil
}

func (m *Memory) UpdateActiveRaceProgress(ctx context.Context, id uuid.UUID, splits []models.Split, disciplineIndex int) error {
	m.mu.Lock()
	r, ok := m.activeRaces[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("active race %s not found", id)
	}
	r.Splits = append([]models.Split(nil), splits...)
	r.CurrentDisciplineIndex = disciplineIndex
	m.activeRaces[id] = r
	m.mu.Unlock()
	m.notify(ctx, CollectionActiveRaces)
	return nil
}

func (m *Memory) UpdateActiveRaceEstimates(ctx context.Context, id uuid.UUID, est *models.EstimatedSplits) error {
	m.mu.Lock()
	r, ok := m.activeRaces[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("active race %s not found", id)
	}
	r.EstimatedSplits = cloneEstimates(est)
	m.activeRaces[id] = r
	m.mu.Unlock()
	m.notify(ctx, CollectionActiveRaces)
	return nil
}

func (m *Memory) DeleteActiveRace(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	delete(m.activeRaces, id)
	m.mu.Unlock()
	m.notify(ctx, CollectionActiveRaces)
	return nil
}

func (m *Memory) UpsertResult(ctx context.Context, r models.RaceResult) error {
	m.mu.Lock()
	m.results[r.ID] = r
	m.mu.Unlock()
	m.notify(ctx, CollectionResults)
	return nil
}

func (m *Memory) DeleteResult(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	delete(m.results, id)
	m.mu.Unlock()
	m.notify(ctx, CollectionResults)
	return nil
}

func (m *Memory) HasResult(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.results[id]
	return ok, nil
}

func (m *Memory) CompleteRace(ctx context.Context, raceID uuid.UUID, result models.RaceResult) error {
	m.mu.Lock()
	if _, ok := m.activeRaces[raceID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("active race %s not found", raceID)
	}
	delete(m.activeRaces, raceID)
	m.results[result.ID] = result
	m.mu.Unlock()
	m.notify(ctx, CollectionResults)
	m.notify(ctx, CollectionActiveRaces)
	return nil
}

func (m *Memory) ListPersons(ctx context.Context) ([]models.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Person, 0, len(m.persons))
	for _, p := range m.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListResults(ctx context.Context) ([]models.RaceResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RaceResult, 0, len(m.results))
	for _, r := range m.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalTime < out[j].TotalTime })
	return out, nil
}

func (m *Memory) ListActiveRaces(ctx context.Context) ([]models.ActiveRace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ActiveRace, 0, len(m.activeRaces))
	for _, r := range m.activeRaces {
		out = append(out, cloneRace(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *Memory) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Subscribe registers a handler and immediately delivers the current
// snapshot, mirroring the feed contract of the networked store.
func (m *Memory) Subscribe(ctx context.Context, c Collection, h SnapshotHandler) (Subscription, error) {
	m.subMu.Lock()
	if m.subs[c] == nil {
		m.subs[c] = make(map[int]SnapshotHandler)
	}
	id := m.nextSub
	m.nextSub++
	m.subs[c][id] = h
	m.subMu.Unlock()

	snap, err := m.snapshot(ctx, c)
	if err != nil {
		return nil, err
	}
	h(snap)

	return &memorySub{store: m, collection: c, id: id}, nil
}

type memorySub struct {
	store      *Memory
	collection Collection
	id         int
}

func (s *memorySub) Unsubscribe() error {
	s.store.subMu.Lock()
	defer s.store.subMu.Unlock()
	delete(s.store.subs[s.collection], s.id)
	return nil
}

func (m *Memory) notify(ctx context.Context, c Collection) {
	snap, err := m.snapshot(ctx, c)
	if err != nil {
		return
	}
	m.subMu.Lock()
	handlers := make([]SnapshotHandler, 0, len(m.subs[c]))
	for _, h := range m.subs[c] {
		handlers = append(handlers, h)
	}
	m.subMu.Unlock()
	for _, h := range handlers {
		h(snap)
	}
}

func (m *Memory) snapshot(ctx context.Context, c Collection) (Snapshot, error) {
	snap := Snapshot{Collection: c}
	var err error
	switch c {
	case CollectionPersons:
		snap.Persons, err = m.ListPersons(ctx)
	case CollectionResults:
		snap.Results, err = m.ListResults(ctx)
	case CollectionActiveRaces:
		snap.ActiveRaces, err = m.ListActiveRaces(ctx)
	case CollectionUsers:
		snap.Users, err = m.ListUsers(ctx)
	default:
		err = fmt.Errorf("unknown collection %q", c)
	}
	return snap, err
}

func cloneRace(r models.ActiveRace) models.ActiveRace {
	r.Splits = append([]models.Split(nil), r.Splits...)
	r.EstimatedSplits = cloneEstimates(r.EstimatedSplits)
	return r
}

func cloneEstimates(e *models.EstimatedSplits) *models.EstimatedSplits {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
