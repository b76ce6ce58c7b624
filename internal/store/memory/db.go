package memory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/switchboard/internal/models"
	"github.com/wolfeidau/switchboard/internal/store"
)

// db is the shared in-memory state behind every store in this package.
// A single lock covers all tables so that multi-table operations are atomic,
// mirroring a transaction in the PostgreSQL implementation.
type db struct {
	mu sync.RWMutex

	teams       map[uuid.UUID]*models.Team
	users       map[string]*models.User
	memberships map[string]*models.Membership // user_id -> Membership
	contacts    map[uuid.UUID]*models.Contact
	messages    map[uuid.UUID][]*models.Message // contact_id -> messages in insertion order
	seq         int64
}

func newDB() *db {
	return &db{
		teams:       make(map[uuid.UUID]*models.Team),
		users:       make(map[string]*models.User),
		memberships: make(map[string]*models.Membership),
		contacts:    make(map[uuid.UUID]*models.Contact),
		messages:    make(map[uuid.UUID][]*models.Message),
	}
}

// New creates in-memory stores sharing one backing database.
// This implementation is for testing and local development only - data is lost on restart.
func New() store.Stores {
	d := newDB()
	return store.Stores{
		Teams:         &TeamStore{db: d},
		Users:         &UserStore{db: d},
		Contacts:      &ContactStore{db: d},
		Messages:      &MessageStore{db: d},
		Conversations: &MessageStore{db: d},
	}
}
