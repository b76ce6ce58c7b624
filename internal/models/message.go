package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction of a message relative to the team.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Channel is the transport a message travelled on.
type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
)

// WhatsAppPrefix marks a carrier address as a WhatsApp address.
const WhatsAppPrefix = "whatsapp:"

// MessageStatus is the lifecycle state recorded for a message.
type MessageStatus string

const (
	StatusUnread MessageStatus = "UNREAD"
	StatusSent   MessageStatus = "SENT"
)

// ChannelForAddress derives the channel from a carrier address.
// This is the only place the rule lives; ingestion and dispatch both call it.
func ChannelForAddress(address string) Channel {
	if strings.HasPrefix(address, WhatsAppPrefix) {
		return ChannelWhatsApp
	}
	return ChannelSMS
}

// BareNumber strips any channel prefix from a carrier address.
func BareNumber(address string) string {
	return strings.TrimPrefix(address, WhatsAppPrefix)
}

// AddressForChannel formats a bare number for the given channel.
func AddressForChannel(number string, ch Channel) string {
	number = BareNumber(number)
	if ch == ChannelWhatsApp {
		return WhatsAppPrefix + number
	}
	return number
}

// Message is an immutable entry in a contact's conversation.
// Messages for a contact are totally ordered by (CreatedAt, Seq).
type Message struct {
	MessageID  uuid.UUID // UUIDv7
	Seq        int64     // Store-assigned insertion sequence, tie-break for CreatedAt
	ContactID  uuid.UUID // FK to contacts
	UserID     *string   // Sending team member, set iff Direction is OUTBOUND
	Content    string
	Direction  Direction
	Channel    Channel
	Status     MessageStatus
	ExternalID string // Carrier-assigned message SID
	CreatedAt  time.Time
}

// Sender is the public view of the user who sent an outbound message.
type Sender struct {
	Name  string
	Email string
}

// MessageView is a message joined with its sender for history rendering.
type MessageView struct {
	Message
	Sender *Sender // nil for inbound messages
}
