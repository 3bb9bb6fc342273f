// Package store is the replicated-document-store boundary: durable
// persistence for persons, results, users and active races, plus a
// per-collection snapshot change feed that keeps every client's cached view
// converging to the authoritative state.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/mcdev12/trierg/go/internal/models"
)

// Collection names one of the shared document sets.
type Collection string

const (
	CollectionPersons     Collection = "persons"
	CollectionResults     Collection = "results"
	CollectionActiveRaces Collection = "activeRaces"
	CollectionUsers       Collection = "users"
)

// Collections lists every feed-backed collection.
var Collections = []Collection{CollectionPersons, CollectionResults, CollectionActiveRaces, CollectionUsers}

// Snapshot is one change notification: the full current contents of a
// single collection, in its canonical order (creation time ascending for
// persons and users, total time ascending for results, start time ascending
// for active races). Only the slice matching Collection is populated.
type Snapshot struct {
	Collection  Collection          `json:"collection"`
	Persons     []models.Person     `json:"persons,omitempty"`
	Results     []models.RaceResult `json:"results,omitempty"`
	ActiveRaces []models.ActiveRace `json:"active_races,omitempty"`
	Users       []models.User       `json:"users,omitempty"`
}

// SnapshotHandler consumes change notifications. Handlers run on the feed's
// delivery goroutine and must not block.
type SnapshotHandler func(Snapshot)

// Subscription is the explicit lifecycle handle for one collection feed.
type Subscription interface {
	Unsubscribe() error
}

// Feed delivers change notifications per collection. A new subscriber
// receives the current snapshot immediately when the feed has one.
type Feed interface {
	Subscribe(ctx context.Context, c Collection, h SnapshotHandler) (Subscription, error)
}

// Store is the write/read surface of the durable store. Mutations to active
// races are field-scoped so concurrent split-taking and estimate-editing on
// the same race merge instead of clobbering each other.
type Store interface {
	UpsertPerson(ctx context.Context, p models.Person) error
	DeletePerson(ctx context.Context, id uuid.UUID) error

	UpsertUser(ctx context.Context, u models.User) error

	UpsertActiveRace(ctx context.Context, r models.ActiveRace) error
	UpdateActiveRaceProgress(ctx context.Context, id uuid.UUID, splits []models.Split, disciplineIndex int) error
	UpdateActiveRaceEstimates(ctx context.Context, id uuid.UUID, est *models.EstimatedSplits) error
	DeleteActiveRace(ctx context.Context, id uuid.UUID) error

	UpsertResult(ctx context.Context, r models.RaceResult) error
	DeleteResult(ctx context.Context, id uuid.UUID) error
	HasResult(ctx context.Context, id uuid.UUID) (bool, error)

	// CompleteRace inserts the result and deletes the active race as one
	// atomic operation: no observer may see the race as both or neither.
	CompleteRace(ctx context.Context, raceID uuid.UUID, result models.RaceResult) error

	ListPersons(ctx context.Context) ([]models.Person, error)
	ListResults(ctx context.Context) ([]models.RaceResult, error)
	ListActiveRaces(ctx context.Context) ([]models.ActiveRace, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Publisher pushes a collection snapshot out to subscribers after a
// committed write.
type Publisher interface {
	PublishSnapshot(ctx context.Context, s Snapshot) error
}
