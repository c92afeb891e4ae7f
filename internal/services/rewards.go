package services

import (
	"errors"
	"log"
	"time"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
)

// RewardService resolves the active reward configuration and computes the
// token amount each milestone unlocks.
type RewardService struct {
	store storage.Store
	nowFn func() time.Time
}

func NewRewardService(store storage.Store) *RewardService {
	return &RewardService{store: store, nowFn: time.Now}
}

// ResolveSlab returns the first slab whose [MinKM, MaxKM) range contains the
// distance, nil when none does.
func ResolveSlab(slabs []models.DistanceSlab, distanceKM float64) *models.DistanceSlab {
	for i := range slabs {
		if distanceKM >= slabs[i].MinKM && distanceKM < slabs[i].MaxKM {
			return &slabs[i]
		}
	}
	return nil
}

// ComputeStageTokens returns floor(baseTokens × stagePct / 100) for the slab
// matching the distance, 0 when no slab matches.
func ComputeStageTokens(settings *models.RewardSettings, distanceKM float64, stage string) int {
	slab := ResolveSlab(settings.Slabs, distanceKM)
	if slab == nil {
		return 0
	}
	return slab.BaseTokens * settings.StagePct(stage) / 100
}

// ActiveSettings returns the currently effective reward configuration.
func (r *RewardService) ActiveSettings() (*models.RewardSettings, error) {
	settings, err := r.store.GetActiveRewardSettings(r.nowFn())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrConfigurationMissing("no active reward settings")
		}
		return nil, err
	}
	return settings, nil
}

// CreateSettings publishes a new configuration version. Existing versions are
// never edited; the newest effective one wins.
func (r *RewardService) CreateSettings(actor models.Actor, req *models.RewardSettingsCreateRequest) (*models.RewardSettings, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden("only admins manage reward settings")
	}
	if err := validatePct("confirmation_pct", req.ConfirmationPct); err != nil {
		return nil, err
	}
	if err := validatePct("pickup_pct", req.PickupPct); err != nil {
		return nil, err
	}
	if err := validatePct("delivery_pct", req.DeliveryPct); err != nil {
		return nil, err
	}

	settings := &models.RewardSettings{
		ConfirmationPct: req.ConfirmationPct,
		PickupPct:       req.PickupPct,
		DeliveryPct:     req.DeliveryPct,
		IsActive:        true,
	}
	if req.EffectiveAt != nil {
		settings.EffectiveAt = *req.EffectiveAt
	} else {
		settings.EffectiveAt = r.nowFn()
	}

	for i, in := range req.Slabs {
		if in.MinKM < 0 || in.MaxKM <= in.MinKM {
			return nil, ErrValidation("slab %d: min_km must be >= 0 and below max_km", i)
		}
		if in.BaseTokens < 0 {
			return nil, ErrValidation("slab %d: base_tokens must not be negative", i)
		}
		if in.MinMinutesConfirmToPickup < 0 || in.MinMinutesPickupToDelivery < 0 {
			return nil, ErrValidation("slab %d: minute thresholds must not be negative", i)
		}
		settings.Slabs = append(settings.Slabs, models.DistanceSlab{
			MinKM:                      in.MinKM,
			MaxKM:                      in.MaxKM,
			BaseTokens:                 in.BaseTokens,
			MinMinutesConfirmToPickup:  in.MinMinutesConfirmToPickup,
			MinMinutesPickupToDelivery: in.MinMinutesPickupToDelivery,
		})
	}

	created, err := r.store.CreateRewardSettings(settings)
	if err != nil {
		return nil, err
	}
	log.Printf("⚙️  Reward settings %s published (%d slabs, %d/%d/%d%%)",
		created.SettingsID, len(created.Slabs),
		created.ConfirmationPct, created.PickupPct, created.DeliveryPct)
	return created, nil
}

func validatePct(field string, pct int) error {
	if pct < 0 || pct > 100 {
		return ErrValidation("%s must be between 0 and 100", field)
	}
	return nil
}
