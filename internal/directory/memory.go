package directory

import (
	"context"
	"slices"
	"sync"
	"time"

	"engagement-service/internal/models"

	"github.com/google/uuid"
)

type Memory struct {
	mu           sync.Mutex
	actors       map[uuid.UUID]*models.Actor
	autoRegister bool
}

func NewMemory() *Memory {
	return &Memory{actors: make(map[uuid.UUID]*models.Actor)}
}

// NewAutoRegisteringMemory returns a directory that creates an empty actor
// the first time an unknown id is looked up or followed. It backs the
// in-memory store, where no user service feeds the directory.
func NewAutoRegisteringMemory() *Memory {
	d := NewMemory()
	d.autoRegister = true
	return d
}

func (d *Memory) lookupLocked(id uuid.UUID) (*models.Actor, bool) {
	a, ok := d.actors[id]
	if !ok && d.autoRegister {
		a = &models.Actor{ID: id}
		d.actors[id] = a
		ok = true
	}
	return a, ok
}

// Put registers or replaces an actor.
func (d *Memory) Put(actor models.Actor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	stored := copyActor(actor)
	d.actors[actor.ID] = &stored
}

func copyActor(a models.Actor) models.Actor {
	out := a
	out.FollowingIDs = append([]uuid.UUID{}, a.FollowingIDs...)
	out.FavoriteSports = append([]string{}, a.FavoriteSports...)
	return out
}

func (d *Memory) GetActor(_ context.Context, id uuid.UUID) (models.Actor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.lookupLocked(id)
	if !ok {
		return models.Actor{}, models.NotFound("actor", id)
	}
	return copyActor(*a), nil
}

func (d *Memory) Follow(_ context.Context, followerID, followeeID uuid.UUID, _ time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	follower, ok := d.lookupLocked(followerID)
	if !ok {
		return false, models.NotFound("actor", followerID)
	}
	if _, ok := d.lookupLocked(followeeID); !ok {
		return false, models.NotFound("actor", followeeID)
	}
	if slices.Contains(follower.FollowingIDs, followeeID) {
		return false, nil
	}
	follower.FollowingIDs = append(follower.FollowingIDs, followeeID)
	return true, nil
}

func (d *Memory) Unfollow(_ context.Context, followerID, followeeID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	follower, ok := d.lookupLocked(followerID)
	if !ok {
		return models.NotFound("actor", followerID)
	}
	follower.FollowingIDs = slices.DeleteFunc(follower.FollowingIDs, func(id uuid.UUID) bool { return id == followeeID })
	return nil
}
