package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a dashboard login bound to one wallet account.
type User struct {
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Fullname      string    `gorm:"column:fullname;not null" json:"fullname"`
	Email         string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	PasswordHash  string    `gorm:"column:password_hash;not null" json:"-"`
	Role          string    `gorm:"column:role;not null;default:user" json:"role"`
	WalletAccount string    `gorm:"column:wallet_account;type:varchar(64);not null;index" json:"wallet_account"`
	CreatedAt     time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (User) TableName() string {
	return "Users"
}

// BeforeCreate sets UUID if not set (for DBs without gen_random_uuid).
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	return nil
}
