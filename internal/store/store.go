package store

import "errors"

// Stores groups the stores the inbox needs. All of them share one backing database.
type Stores struct {
	Teams         TeamStore
	Users         UserStore
	Contacts      ContactStore
	Messages      MessageStore
	Conversations ConversationStore
}

// Validate checks that every store is set.
func (s Stores) Validate() error {
	if s.Teams == nil || s.Users == nil || s.Contacts == nil || s.Messages == nil || s.Conversations == nil {
		return errors.New("all stores (teams, users, contacts, messages, conversations) are required")
	}
	return nil
}
