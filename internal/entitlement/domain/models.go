package domain

import "time"

// User is the subset of the externally owned users table the quota system reads.
type User struct {
	ID               string     `gorm:"primaryKey;type:varchar(64)"`
	Role             string     `gorm:"type:varchar(32);not null;default:'user'"`
	IsPremium        bool       `gorm:"not null;default:false"`
	PremiumExpiresAt *time.Time `gorm:"index"`
	CreatedAt        time.Time  `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"not null"`
}

func (User) TableName() string { return "users" }

type Entitlement struct {
	UserID           string     `json:"user_id"`
	Role             string     `json:"role"`
	IsPremium        bool       `json:"is_premium"`
	PremiumExpiresAt *time.Time `json:"premium_expires_at,omitempty"`
}

// IsActivePremium reports whether the subscription is paid and unexpired at now.
func (e Entitlement) IsActivePremium(now time.Time) bool {
	if !e.IsPremium || e.PremiumExpiresAt == nil {
		return false
	}
	return e.PremiumExpiresAt.After(now)
}

func FromUser(u User) Entitlement {
	return Entitlement{
		UserID:           u.ID,
		Role:             u.Role,
		IsPremium:        u.IsPremium,
		PremiumExpiresAt: u.PremiumExpiresAt,
	}
}
