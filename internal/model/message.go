package model

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyMessage is returned when a message has no body, file or offer
var ErrEmptyMessage = errors.New("message must contain a body, a file or an offer")

// Message represents one chat entry between a buyer and a seller
type Message struct {
	ID                string     `json:"id,omitempty"`
	ConversationID    string     `json:"conversationId,omitempty"`
	HasConversationID bool       `json:"hasConversationId"`
	GigID             string     `json:"gigId,omitempty"`
	SellerID          string     `json:"sellerId,omitempty"`
	BuyerID           string     `json:"buyerId,omitempty"`
	SenderUsername    string     `json:"senderUsername"`
	SenderPicture     string     `json:"senderPicture,omitempty"`
	ReceiverUsername  string     `json:"receiverUsername"`
	ReceiverPicture   string     `json:"receiverPicture,omitempty"`
	Body              string     `json:"body,omitempty"`
	IsRead            bool       `json:"isRead"`
	HasOffer          bool       `json:"hasOffer"`
	Offer             *Offer     `json:"offer,omitempty"`
	File              string     `json:"file,omitempty"`
	FileType          string     `json:"fileType,omitempty"`
	FileName          string     `json:"fileName,omitempty"`
	FileSize          string     `json:"fileSize,omitempty"`
	CreatedAt         *time.Time `json:"createdAt,omitempty"`
}

// Offer is a custom proposal a seller attaches to a message
type Offer struct {
	GigTitle        string  `json:"gigTitle"`
	Price           float64 `json:"price"`
	Description     string  `json:"description"`
	DeliveryInDays  int     `json:"deliveryInDays"`
	OldDeliveryDate string  `json:"oldDeliveryDate"`
	NewDeliveryDate string  `json:"newDeliveryDate"`
	Accepted        bool    `json:"accepted"`
	Cancelled       bool    `json:"cancelled"`
}

// HasFile reports whether the message carries an encoded attachment
func (m Message) HasFile() bool {
	return m.File != ""
}

// Validate checks that the message carries at least one of body, file or offer
func (m Message) Validate() error {
	if strings.TrimSpace(m.Body) == "" && !m.HasFile() && !(m.HasOffer && m.Offer != nil) {
		return ErrEmptyMessage
	}
	return nil
}

// Involves reports whether the message was exchanged between the two users
func (m Message) Involves(a, b string) bool {
	return (strings.EqualFold(m.SenderUsername, a) && strings.EqualFold(m.ReceiverUsername, b)) ||
		(strings.EqualFold(m.SenderUsername, b) && strings.EqualFold(m.ReceiverUsername, a))
}
