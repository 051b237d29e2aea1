package domain

import "time"

// IdentityResult is what the OTP collaborator reports once a buyer has
// proven who they are.
type IdentityResult struct {
	Verified     bool      `json:"verified"`
	CustomerID   string    `json:"customer_id"`
	SessionToken string    `json:"session_token,omitempty"`
	Tier         string    `json:"tier,omitempty"`
	Bots         *BotCheck `json:"bots,omitempty"`
}

// BotCheck tells whether a gifting bot is befriended with the buyer's account.
type BotCheck struct {
	Available bool  `json:"available"`
	Bots      []Bot `json:"bots,omitempty"`
}

type Bot struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	FriendSince *time.Time `json:"friend_since,omitempty"`
}
