package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserProfile mirrors the user_profiles table.
type UserProfile struct {
	ProfileID    string    `gorm:"type:uuid;primaryKey"`
	UserID       string    `gorm:"not null;index:idx_user_profiles_user_id,unique"`
	Email        string    `gorm:"not null;default:''"`
	EventCredits int64     `gorm:"not null;check:chk_user_profiles_event_credits,event_credits >= 0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (UserProfile) TableName() string { return "user_profiles" }

func (profile *UserProfile) BeforeCreate(tx *gorm.DB) error {
	if profile.ProfileID == "" {
		profile.ProfileID = uuid.NewString()
	}
	return nil
}

// CreditTransaction mirrors the credit_transactions table. EventID and IdempotencyKey are nullable so
// the unique (user_id, idempotency_key) index only applies to keyed rows.
type CreditTransaction struct {
	TransactionID  string    `gorm:"type:uuid;primaryKey"`
	UserID         string    `gorm:"not null;index:idx_credit_transactions_user_created,priority:1;index:idx_credit_transactions_user_idem,unique,priority:1"`
	Amount         int64     `gorm:"not null"`
	Type           string    `gorm:"not null"`
	Description    string    `gorm:"not null"`
	EventID        *string   `gorm:"index:idx_credit_transactions_event"`
	IdempotencyKey *string   `gorm:"index:idx_credit_transactions_user_idem,unique,priority:2"`
	CreatedAt      time.Time `gorm:"not null;index:idx_credit_transactions_user_created,priority:2"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }

func (transaction *CreditTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// Event mirrors the events table. List-valued attributes are stored as JSON.
type Event struct {
	EventID       string         `gorm:"primaryKey"`
	UserID        string         `gorm:"not null;index:idx_events_user_created,priority:1"`
	Title         string         `gorm:"not null"`
	Slug          string         `gorm:"not null;index:idx_events_slug,unique"`
	TemplateID    string         `gorm:"not null"`
	Ingress       string         `gorm:"not null;default:''"`
	Body          string         `gorm:"not null;default:''"`
	FromDate      *time.Time     `gorm:""`
	ToDate        *time.Time     `gorm:""`
	HasTimeSlot   bool           `gorm:"not null;default:false"`
	TimeSlotStart string         `gorm:"not null;default:''"`
	TimeSlotEnd   string         `gorm:"not null;default:''"`
	Location      string         `gorm:"not null;default:''"`
	CoverImageURL string         `gorm:"not null;default:''"`
	Images        datatypes.JSON `gorm:"not null"`
	TicketTypes   datatypes.JSON `gorm:"not null"`
	Entrance      datatypes.JSON `gorm:"not null"`
	Parking       datatypes.JSON `gorm:"not null"`
	Camping       datatypes.JSON `gorm:"not null"`
	CustomStyles  datatypes.JSON `gorm:""`
	CreatedAt     time.Time      `gorm:"not null;index:idx_events_user_created,priority:2"`
	UpdatedAt     time.Time      `gorm:"not null"`
}

func (Event) TableName() string { return "events" }

// AutoMigrate creates or updates every table used by the stores.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserProfile{}, &CreditTransaction{}, &Event{})
}
