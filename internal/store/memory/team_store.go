package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
)

// TeamStore implements store.TeamStore using in-memory storage.
type TeamStore struct {
	db *db
}

// Create creates a new team in memory.
func (s *TeamStore) Create(ctx context.Context, team *models.Team) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	return s.db.insertTeam(team)
}

// insertTeam must be called with the write lock held.
func (d *db) insertTeam(team *models.Team) error {
	if _, exists := d.teams[team.TeamID]; exists {
		return store.ErrTeamAlreadyExists
	}
	if team.PhoneNumber != nil && d.phoneTaken(*team.PhoneNumber, team.TeamID) {
		return store.ErrPhoneNumberAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *team
	d.teams[team.TeamID] = &clone
	return nil
}

func (d *db) phoneTaken(phone string, except uuid.UUID) bool {
	for id, t := range d.teams {
		if id != except && t.PhoneNumber != nil && *t.PhoneNumber == phone {
			return true
		}
	}
	return false
}

// Get retrieves a team by ID.
func (s *TeamStore) Get(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	team, exists := s.db.teams[teamID]
	if !exists {
		return nil, store.ErrTeamNotFound
	}

	clone := *team
	return &clone, nil
}

// GetByPhoneNumber retrieves the team that owns a carrier number.
func (s *TeamStore) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Team, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, team := range s.db.teams {
		if team.PhoneNumber != nil && *team.PhoneNumber == phoneNumber {
			clone := *team
			return &clone, nil
		}
	}

	return nil, store.ErrTeamNotFound
}

// Update updates an existing team.
func (s *TeamStore) Update(ctx context.Context, team *models.Team) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.teams[team.TeamID]; !exists {
		return store.ErrTeamNotFound
	}
	if team.PhoneNumber != nil && s.db.phoneTaken(*team.PhoneNumber, team.TeamID) {
		return store.ErrPhoneNumberAlreadyExists
	}

	team.UpdatedAt = time.Now()

	clone := *team
	s.db.teams[team.TeamID] = &clone

	return nil
}

// CreateWithMembership creates a team and its first membership under one lock.
func (s *TeamStore) CreateWithMembership(ctx context.Context, team *models.Team, membership *models.Membership) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.memberships[membership.UserID]; exists {
		return store.ErrMembershipAlreadyExists
	}
	if _, exists := s.db.users[membership.UserID]; !exists {
		return store.ErrUserNotFound
	}

	if err := s.db.insertTeam(team); err != nil {
		return err
	}

	clone := *membership
	s.db.memberships[membership.UserID] = &clone

	return nil
}

// AddMembership binds a user to an existing team.
func (s *TeamStore) AddMembership(ctx context.Context, membership *models.Membership) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.memberships[membership.UserID]; exists {
		return store.ErrMembershipAlreadyExists
	}
	if _, exists := s.db.users[membership.UserID]; !exists {
		return store.ErrUserNotFound
	}
	if _, exists := s.db.teams[membership.TeamID]; !exists {
		return store.ErrTeamNotFound
	}

	clone := *membership
	s.db.memberships[membership.UserID] = &clone

	return nil
}

// GetMembershipByUser retrieves the membership for a user.
func (s *TeamStore) GetMembershipByUser(ctx context.Context, userID string) (*models.Membership, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	m, exists := s.db.memberships[userID]
	if !exists {
		return nil, store.ErrMembershipNotFound
	}

	clone := *m
	return &clone, nil
}
