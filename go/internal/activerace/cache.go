package activerace

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mcdev12/trierg/go/internal/models"
	"github.com/mcdev12/trierg/go/internal/store"
)

// Cache is the local view of the shared collections. It is written only
// from feed snapshots, never from the client's own optimistic writes, so it
// always converges to what the store acknowledged.
type Cache struct {
	mu          sync.RWMutex
	persons     []models.Person
	results     []models.RaceResult
	activeRaces []models.ActiveRace
	users       []models.User
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Apply replaces one collection's view from a feed snapshot.
func (c *Cache) Apply(s store.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch s.Collection {
	case store.CollectionPersons:
		c.persons = s.Persons
	case store.CollectionResults:
		c.results = s.Results
	case store.CollectionActiveRaces:
		c.activeRaces = s.ActiveRaces
	case store.CollectionUsers:
		c.users = s.Users
	}
}

// Persons returns the cached person list, creation order.
func (c *Cache) Persons() []models.Person {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Person(nil), c.persons...)
}

// Results returns the cached durable results, total time ascending.
func (c *Cache) Results() []models.RaceResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.RaceResult(nil), c.results...)
}

// ActiveRaces returns the cached running races, start time ascending.
func (c *Cache) ActiveRaces() []models.ActiveRace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.ActiveRace(nil), c.activeRaces...)
}

// Users returns the cached operator accounts.
func (c *Cache) Users() []models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.User(nil), c.users...)
}

// ActiveRaceByID looks a running race up in the cached view.
func (c *Cache) ActiveRaceByID(id uuid.UUID) (models.ActiveRace, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.activeRaces {
		if r.ID == id {
			return r, true
		}
	}
	return models.ActiveRace{}, false
}

// ActiveRacesForPerson returns every running race for one person. More than
// one entry means two clients raced the duplicate check; both stay visible.
func (c *Cache) ActiveRacesForPerson(personID uuid.UUID) []models.ActiveRace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.ActiveRace
	for _, r := range c.activeRaces {
		if r.PersonID == personID {
			out = append(out, r)
		}
	}
	return out
}

// PersonByID looks a person up in the cached view.
func (c *Cache) PersonByID(id uuid.UUID) (models.Person, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.persons {
		if p.ID == id {
			return p, true
		}
	}
	return models.Person{}, false
}

// UserByID looks an operator account up in the cached view.
func (c *Cache) UserByID(id uuid.UUID) (models.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, u := range c.users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

// DuplicateRacePersons reports the person ids that currently have more than
// one active race. The inconsistency is surfaced, not auto-resolved.
func (c *Cache) DuplicateRacePersons() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[uuid.UUID]int)
	for _, r := range c.activeRaces {
		counts[r.PersonID]++
	}
	var out []uuid.UUID
	for _, r := range c.activeRaces {
		if counts[r.PersonID] > 1 {
			counts[r.PersonID] = 0 // report each person once
			out = append(out, r.PersonID)
		}
	}
	return out
}
