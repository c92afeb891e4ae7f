package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/utils"
)

// RewardSettings is one versioned reward configuration. The active version is
// the one with IsActive=true and the most recent EffectiveAt; it is resolved
// fresh at each milestone so configuration changes apply prospectively to
// milestones not yet reached. Versions already referenced by payouts are
// never edited — changes are new rows.
type RewardSettings struct {
	gorm.Model

	SettingsID string `json:"settings_id" gorm:"uniqueIndex"`

	// Percentage of a slab's base tokens unlocked at each stage. Each must
	// be 0-100; they need not sum to 100.
	ConfirmationPct int `json:"confirmation_pct"`
	PickupPct       int `json:"pickup_pct"`
	DeliveryPct     int `json:"delivery_pct"`

	EffectiveAt time.Time `json:"effective_at" gorm:"index"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`

	Slabs []DistanceSlab `json:"slabs" gorm:"foreignKey:SettingsRef;references:SettingsID"`
}

// DistanceSlab is a distance bucket with its base token amount and the
// minimum elapsed-time gates between milestones. MinKM is inclusive, MaxKM
// exclusive. Slabs are authored non-overlapping and ordered; on overlap the
// first declared slab wins — that is an authoring contract, not a runtime
// check.
type DistanceSlab struct {
	gorm.Model

	SettingsRef string  `json:"-" gorm:"index"`
	MinKM       float64 `json:"min_km"`
	MaxKM       float64 `json:"max_km"`
	BaseTokens  int     `json:"base_tokens"`

	// Minimum elapsed minutes before the next milestone may be verified.
	MinMinutesConfirmToPickup  int `json:"min_minutes_confirm_to_pickup"`
	MinMinutesPickupToDelivery int `json:"min_minutes_pickup_to_delivery"`
}

// BeforeCreate generates the SettingsID.
func (s *RewardSettings) BeforeCreate(tx *gorm.DB) error {
	if s.SettingsID == "" {
		s.SettingsID = utils.GenerateSecureID("RWS")
	}
	if s.EffectiveAt.IsZero() {
		s.EffectiveAt = time.Now()
	}
	return nil
}

// StagePct returns the percentage share configured for a reward stage.
func (s *RewardSettings) StagePct(stage string) int {
	switch stage {
	case StageConfirmation:
		return s.ConfirmationPct
	case StagePickup:
		return s.PickupPct
	case StageDelivery:
		return s.DeliveryPct
	}
	return 0
}

// RewardSlabInput is one slab row in a settings creation payload.
type RewardSlabInput struct {
	MinKM                      float64 `json:"min_km"`
	MaxKM                      float64 `json:"max_km"`
	BaseTokens                 int     `json:"base_tokens"`
	MinMinutesConfirmToPickup  int     `json:"min_minutes_confirm_to_pickup"`
	MinMinutesPickupToDelivery int     `json:"min_minutes_pickup_to_delivery"`
}

// RewardSettingsCreateRequest is the admin payload for publishing a new
// configuration version.
type RewardSettingsCreateRequest struct {
	ConfirmationPct int               `json:"confirmation_pct"`
	PickupPct       int               `json:"pickup_pct"`
	DeliveryPct     int               `json:"delivery_pct"`
	EffectiveAt     *time.Time        `json:"effective_at"`
	Slabs           []RewardSlabInput `json:"slabs"`
}
