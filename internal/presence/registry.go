// Package presence holds the in-memory source of truth for who is online.
package presence

import (
	"sort"

	"github.com/google/uuid"
)

// Registry maps a user to the single connection currently bound for them.
// A later Bind for the same user replaces the earlier connection.
//
// Registry is not safe for concurrent use. The realtime gateway owns it and
// touches it only from its event loop.
type Registry[C comparable] struct {
	byUser map[uuid.UUID]C
	byConn map[C]uuid.UUID
}

func NewRegistry[C comparable]() *Registry[C] {
	return &Registry[C]{
		byUser: make(map[uuid.UUID]C),
		byConn: make(map[C]uuid.UUID),
	}
}

// Bind registers conn for userID. If another connection was bound it is
// returned with replaced set so the caller can close it.
func (r *Registry[C]) Bind(userID uuid.UUID, conn C) (prev C, replaced bool) {
	if old, ok := r.byUser[userID]; ok {
		if old == conn {
			return prev, false
		}
		delete(r.byConn, old)
		prev, replaced = old, true
	}
	if owner, ok := r.byConn[conn]; ok && owner != userID {
		delete(r.byUser, owner)
	}
	r.byUser[userID] = conn
	r.byConn[conn] = userID
	return prev, replaced
}

// UnbindConn removes conn if it is still the current binding of its user.
// A superseded connection closing late never unbinds its replacement.
func (r *Registry[C]) UnbindConn(conn C) (uuid.UUID, bool) {
	userID, ok := r.byConn[conn]
	if !ok {
		return uuid.Nil, false
	}
	delete(r.byConn, conn)
	delete(r.byUser, userID)
	return userID, true
}

// UnbindUser removes whatever connection is bound for userID.
func (r *Registry[C]) UnbindUser(userID uuid.UUID) (C, bool) {
	conn, ok := r.byUser[userID]
	if !ok {
		return conn, false
	}
	delete(r.byUser, userID)
	delete(r.byConn, conn)
	return conn, true
}

func (r *Registry[C]) IsOnline(userID uuid.UUID) bool {
	_, ok := r.byUser[userID]
	return ok
}

func (r *Registry[C]) Lookup(userID uuid.UUID) (C, bool) {
	conn, ok := r.byUser[userID]
	return conn, ok
}

// Owner returns the user conn is bound to.
func (r *Registry[C]) Owner(conn C) (uuid.UUID, bool) {
	userID, ok := r.byConn[conn]
	return userID, ok
}

// Snapshot returns the online user ids ordered by their string form.
func (r *Registry[C]) Snapshot() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// Each calls fn for every bound connection.
func (r *Registry[C]) Each(fn func(userID uuid.UUID, conn C)) {
	for id, conn := range r.byUser {
		fn(id, conn)
	}
}

func (r *Registry[C]) Len() int {
	return len(r.byUser)
}
