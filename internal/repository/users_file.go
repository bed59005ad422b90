package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/atinyakov/DocLedger/internal/models"
)

// FileUserRepository is the identity store used with the file ledger.
type FileUserRepository struct {
	path string

	mu         sync.RWMutex
	users      []models.User
	byID       map[string]int
	byUsername map[string]int
}

// NewFileUserRepository loads users from path. A missing file starts empty;
// an empty path keeps users in memory only.
func NewFileUserRepository(path string) (*FileUserRepository, error) {
	r := &FileUserRepository{
		path:       path,
		byID:       make(map[string]int),
		byUsername: make(map[string]int),
	}
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read users: %w", err)
	}
	var users []models.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for _, u := range users {
		r.add(u)
	}
	return r, nil
}

func (r *FileUserRepository) add(u models.User) {
	r.users = append(r.users, u)
	r.byID[u.ID] = len(r.users) - 1
	r.byUsername[u.Username] = len(r.users) - 1
}

// UserExists checks whether username is taken.
func (r *FileUserRepository) UserExists(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUsername[username]
	return ok, nil
}

// RegisterUser stores user, rejecting duplicate usernames.
func (r *FileUserRepository) RegisterUser(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[user.Username]; ok {
		return models.ErrUserExists
	}
	r.add(user)
	if r.path != "" {
		if err := writeJSONAtomic(r.path, r.users); err != nil {
			r.users = r.users[:len(r.users)-1]
			delete(r.byID, user.ID)
			delete(r.byUsername, user.Username)
			return fmt.Errorf("persist users: %w", err)
		}
	}
	return nil
}

// GetUserByUsername looks a user up by login name.
func (r *FileUserRepository) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byUsername[username]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return r.users[idx], nil
}

// GetUserByID looks a user up by ID.
func (r *FileUserRepository) GetUserByID(_ context.Context, id string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return r.users[idx], nil
}
