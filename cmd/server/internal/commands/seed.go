package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/switchboard/internal/logger"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
	postgresstore "github.com/wolfeidau/switchboard/internal/store/postgres"
	"gopkg.in/yaml.v3"
)

type SeedCmd struct {
	File          string             `help:"YAML file listing teams, their carrier numbers and members" required:"" type:"existingfile" env:"SWITCHBOARD_SEED_FILE"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

// SeedFile provisions teams with carrier numbers and members.
//
//	teams:
//	  - name: Acme Support
//	    phone_number: "+15559998888"
//	    members:
//	      - user_id: "auth0|123"
//	        name: Jane Doe
//	        email: jane@example.com
//	        role: ADMIN
//	  - name: Jane's Team
//	    phone_number: "+15557776666"
//	    team_id: "01890a5d-ac96-774b-bcce-b302099a8057"
//
// A team_id binds the number to a team that already exists, such as one created when its
// admin first signed in.
type SeedFile struct {
	Teams []SeedTeam `yaml:"teams"`
}

type SeedTeam struct {
	Name        string       `yaml:"name"`
	PhoneNumber string       `yaml:"phone_number"`
	TeamID      string       `yaml:"team_id"`
	Members     []SeedMember `yaml:"members"`
}

type SeedMember struct {
	UserID string `yaml:"user_id"`
	Name   string `yaml:"name"`
	Email  string `yaml:"email"`
	// Role defaults to MEMBER.
	Role string `yaml:"role"`
}

func (m SeedMember) role() models.Role {
	if m.Role == "" {
		return models.RoleMember
	}
	return models.Role(m.Role)
}

// seedResult counts what a seed run changed.
type seedResult struct {
	Created int
	Updated int
	Members int
}

func loadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	numbers := make(map[string]bool, len(seed.Teams))
	teamIDs := make(map[string]bool)
	users := make(map[string]bool)
	for i, t := range seed.Teams {
		if t.Name == "" || t.PhoneNumber == "" {
			return nil, fmt.Errorf("team %d: name and phone_number are required", i)
		}
		if numbers[t.PhoneNumber] {
			return nil, fmt.Errorf("team %d: duplicate phone_number %s", i, t.PhoneNumber)
		}
		numbers[t.PhoneNumber] = true

		if t.TeamID != "" {
			if _, err := uuid.Parse(t.TeamID); err != nil {
				return nil, fmt.Errorf("team %d: invalid team_id: %w", i, err)
			}
			if teamIDs[t.TeamID] {
				return nil, fmt.Errorf("team %d: duplicate team_id %s", i, t.TeamID)
			}
			teamIDs[t.TeamID] = true
		}

		for j, m := range t.Members {
			if m.UserID == "" {
				return nil, fmt.Errorf("team %d member %d: user_id is required", i, j)
			}
			if role := m.role(); role != models.RoleAdmin && role != models.RoleMember {
				return nil, fmt.Errorf("team %d member %d: role must be ADMIN or MEMBER, got %q", i, j, m.Role)
			}
			if users[m.UserID] {
				return nil, fmt.Errorf("team %d member %d: user %s is listed more than once", i, j, m.UserID)
			}
			users[m.UserID] = true
		}
	}

	return &seed, nil
}

// seedTeams makes every listed number route to a team and every listed member belong to it.
// It can be re-run: numbers already routed are renamed and existing memberships are kept.
func seedTeams(ctx context.Context, stores store.Stores, seed *SeedFile) (seedResult, error) {
	var result seedResult

	for _, t := range seed.Teams {
		number := models.BareNumber(t.PhoneNumber)

		team, err := seedTeam(ctx, stores.Teams, t, number, &result)
		if err != nil {
			return result, err
		}

		for _, m := range t.Members {
			added, err := seedMember(ctx, stores, team, m)
			if err != nil {
				return result, fmt.Errorf("team %s: %w", number, err)
			}
			if added {
				result.Members++
			}
		}
	}

	return result, nil
}

func seedTeam(ctx context.Context, teams store.TeamStore, t SeedTeam, number string, result *seedResult) (*models.Team, error) {
	owner, err := teams.GetByPhoneNumber(ctx, number)
	if err != nil && !errors.Is(err, store.ErrTeamNotFound) {
		return nil, fmt.Errorf("failed to look up team %s: %w", number, err)
	}

	if t.TeamID != "" {
		team, err := teams.Get(ctx, uuid.MustParse(t.TeamID))
		if err != nil {
			return nil, fmt.Errorf("failed to get team %s: %w", t.TeamID, err)
		}
		if owner != nil && owner.TeamID != team.TeamID {
			return nil, fmt.Errorf("number %s already routes to team %s", number, owner.TeamID)
		}
		return applyTeam(ctx, teams, team, t.Name, number, result)
	}

	if owner != nil {
		return applyTeam(ctx, teams, owner, t.Name, number, result)
	}

	now := time.Now()
	team := &models.Team{
		TeamID:      uuid.Must(uuid.NewV7()),
		Name:        t.Name,
		PhoneNumber: &number,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := teams.Create(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to create team %s: %w", number, err)
	}
	result.Created++

	return team, nil
}

func applyTeam(ctx context.Context, teams store.TeamStore, team *models.Team, name, number string, result *seedResult) (*models.Team, error) {
	if team.Name == name && team.PhoneNumber != nil && *team.PhoneNumber == number {
		return team, nil
	}

	team.Name = name
	team.PhoneNumber = &number
	team.UpdatedAt = time.Now()
	if err := teams.Update(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to update team %s: %w", number, err)
	}
	result.Updated++

	return team, nil
}

// seedMember reports whether a membership was added.
func seedMember(ctx context.Context, stores store.Stores, team *models.Team, m SeedMember) (bool, error) {
	existing, err := stores.Teams.GetMembershipByUser(ctx, m.UserID)
	switch {
	case err == nil:
		if existing.TeamID != team.TeamID {
			return false, fmt.Errorf("user %s already belongs to team %s", m.UserID, existing.TeamID)
		}
		return false, nil
	case !errors.Is(err, store.ErrMembershipNotFound):
		return false, fmt.Errorf("failed to look up membership for %s: %w", m.UserID, err)
	}

	now := time.Now()

	// Users who have signed in keep the claims from their token.
	_, err = stores.Users.Get(ctx, m.UserID)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		if err := stores.Users.Upsert(ctx, &models.User{UserID: m.UserID, Name: m.Name, Email: m.Email, UpdatedAt: now}); err != nil {
			return false, fmt.Errorf("failed to save user %s: %w", m.UserID, err)
		}
	case err != nil:
		return false, fmt.Errorf("failed to get user %s: %w", m.UserID, err)
	}

	membership := &models.Membership{
		MembershipID: uuid.Must(uuid.NewV7()),
		UserID:       m.UserID,
		TeamID:       team.TeamID,
		Role:         m.role(),
		CreatedAt:    now,
	}
	if err := stores.Teams.AddMembership(ctx, membership); err != nil {
		return false, fmt.Errorf("failed to add %s: %w", m.UserID, err)
	}

	return true, nil
}

// applySeedFile loads path and applies it to stores.
func applySeedFile(ctx context.Context, log zerolog.Logger, stores store.Stores, path string) error {
	seed, err := loadSeedFile(path)
	if err != nil {
		return err
	}

	result, err := seedTeams(ctx, stores, seed)
	if err != nil {
		return err
	}

	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("members", result.Members).
		Msg("Seeded teams")
	return nil
}

func (c *SeedCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	pool, err := c.PostgresStore.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	stores := postgresstore.New(pool, postgresstore.StoreConfig{QueryTimeout: c.PostgresStore.QueryTimeout})

	return applySeedFile(ctx, log, stores, c.File)
}
