package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store is one physical repair-shop location. PlaceID is the external identity
// assigned by the places provider and is the upsert conflict key; ID is the
// internal surrogate and never changes once a row exists.
type Store struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlaceID string    `gorm:"column:place_id;not null;uniqueIndex" json:"place_id"`

	Name              string         `gorm:"column:name;not null" json:"name"`
	Subtitle          string         `gorm:"column:subtitle" json:"subtitle,omitempty"`
	Description       string         `gorm:"column:description" json:"description,omitempty"`
	CategoryName      string         `gorm:"column:category_name" json:"category_name,omitempty"`
	Categories        datatypes.JSON `gorm:"column:categories;type:jsonb" json:"categories,omitempty"`
	Website           string         `gorm:"column:website" json:"website,omitempty"`
	Phone             string         `gorm:"column:phone" json:"phone,omitempty"`
	PermanentlyClosed bool           `gorm:"column:permanently_closed;not null;default:false" json:"permanently_closed"`
	TemporarilyClosed bool           `gorm:"column:temporarily_closed;not null;default:false" json:"temporarily_closed"`

	Street       string   `gorm:"column:street" json:"street,omitempty"`
	City         string   `gorm:"column:city;index" json:"city,omitempty"`
	State        string   `gorm:"column:state;index" json:"state,omitempty"`
	PostalCode   string   `gorm:"column:postal_code;index" json:"postal_code,omitempty"`
	CountryCode  string   `gorm:"column:country_code" json:"country_code,omitempty"`
	Neighborhood string   `gorm:"column:neighborhood" json:"neighborhood,omitempty"`
	PlusCode     string   `gorm:"column:plus_code" json:"plus_code,omitempty"`
	Latitude     *float64 `gorm:"column:latitude" json:"latitude,omitempty"`
	Longitude    *float64 `gorm:"column:longitude" json:"longitude,omitempty"`

	TotalScore          *float64       `gorm:"column:total_score" json:"total_score,omitempty"`
	ReviewsCount        int            `gorm:"column:reviews_count;not null;default:0" json:"reviews_count"`
	ReviewsDistribution datatypes.JSON `gorm:"column:reviews_distribution;type:jsonb" json:"reviews_distribution,omitempty"`
	Reviews             datatypes.JSON `gorm:"column:reviews;type:jsonb" json:"reviews,omitempty"`
	ReviewsTags         datatypes.JSON `gorm:"column:reviews_tags;type:jsonb" json:"reviews_tags,omitempty"`
	QuestionsAndAnswers datatypes.JSON `gorm:"column:questions_and_answers;type:jsonb" json:"questions_and_answers,omitempty"`

	AISummary          *string        `gorm:"column:ai_summary" json:"ai_summary,omitempty"`
	AISummaryUpdatedAt *time.Time     `gorm:"column:ai_summary_updated_at" json:"ai_summary_updated_at,omitempty"`
	ConfidenceScore    *float64       `gorm:"column:confidence_score" json:"confidence_score,omitempty"`
	RepairTier         *int           `gorm:"column:repair_tier" json:"repair_tier,omitempty"`
	ServiceTiers       datatypes.JSON `gorm:"column:service_tiers;type:jsonb" json:"service_tiers,omitempty"`

	VerifiedByCall bool       `gorm:"column:verified_by_call;not null;default:false" json:"verified_by_call"`
	VerifiedDate   *time.Time `gorm:"column:verified_date" json:"verified_date,omitempty"`
	OwnerVerified  bool       `gorm:"column:owner_verified;not null;default:false" json:"owner_verified"`

	FirstScrapedAt time.Time `gorm:"column:first_scraped_at;not null" json:"first_scraped_at"`
	LastUpdatedAt  time.Time `gorm:"column:last_updated_at;not null" json:"last_updated_at"`
}

func (Store) TableName() string { return "store" }

// BeforeSave enforces the enrichment bounds at the store invariant level, so a
// bad confidence or tier can never land regardless of which write path
// produced it.
func (s *Store) BeforeSave(tx *gorm.DB) error {
	if s.ConfidenceScore != nil && (*s.ConfidenceScore < 0 || *s.ConfidenceScore > 1) {
		return fmt.Errorf("confidence_score %.2f out of range [0,1]", *s.ConfidenceScore)
	}
	if s.RepairTier != nil && (*s.RepairTier < 1 || *s.RepairTier > 3) {
		return fmt.Errorf("repair_tier %d out of range [1,3]", *s.RepairTier)
	}
	return nil
}
