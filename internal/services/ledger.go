package services

import (
	"log"
	"time"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
)

// LedgerService appends to the driver token ledger. Entries are immutable;
// every write carries a reference key, so replaying the same business event
// returns the original entry instead of double-applying it.
type LedgerService struct {
	store storage.Store
	nowFn func() time.Time
}

func NewLedgerService(store storage.Store) *LedgerService {
	return &LedgerService{store: store, nowFn: time.Now}
}

// Credit appends a positive entry. The bool reports whether the entry was
// newly applied; false means the reference key had already been written.
func (l *LedgerService) Credit(driverID string, amount int, reason, referenceKey, actorID string) (*models.TokenTransaction, bool, error) {
	return l.append(models.DirectionCredit, driverID, amount, reason, referenceKey, actorID)
}

// Debit appends a negative entry (clawbacks, manual corrections).
func (l *LedgerService) Debit(driverID string, amount int, reason, referenceKey, actorID string) (*models.TokenTransaction, bool, error) {
	return l.append(models.DirectionDebit, driverID, amount, reason, referenceKey, actorID)
}

func (l *LedgerService) append(direction, driverID string, amount int, reason, referenceKey, actorID string) (*models.TokenTransaction, bool, error) {
	if driverID == "" {
		return nil, false, ErrValidation("driver id is required")
	}
	if amount <= 0 {
		return nil, false, ErrValidation("ledger amount must be positive, got %d", amount)
	}
	if referenceKey == "" {
		return nil, false, ErrValidation("reference key is required")
	}

	entry := &models.TokenTransaction{
		DriverID:     driverID,
		Direction:    direction,
		Amount:       amount,
		Reason:       reason,
		ReferenceKey: referenceKey,
		ActorID:      actorID,
	}
	applied, fresh, err := l.store.AppendTokenTransaction(entry)
	if err != nil {
		return nil, false, ErrLedgerFailure("ledger write failed: %v", err)
	}
	if !fresh {
		log.Printf("🔁 Ledger entry for %s already applied (%s), skipping", referenceKey, applied.TransactionID)
	}
	return applied, fresh, nil
}

// Adjust is the admin path for manual corrections. It requires a reference
// key like every other entry, so a retried request cannot double-apply.
func (l *LedgerService) Adjust(actor models.Actor, req *models.TokenAdjustRequest) (*models.TokenTransaction, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden("only admins adjust the ledger")
	}
	if req.Direction != models.DirectionCredit && req.Direction != models.DirectionDebit {
		return nil, ErrValidation("direction must be credit or debit")
	}
	if _, err := l.store.GetUser(req.DriverID); err != nil {
		return nil, ErrNotFound("driver %s not found", req.DriverID)
	}

	entry, fresh, err := l.append(req.Direction, req.DriverID, req.Amount, req.Reason, req.ReferenceKey, actor.UserID)
	if err != nil {
		return nil, err
	}
	if fresh {
		log.Printf("🛠  Manual %s of %d tokens for %s by %s", req.Direction, req.Amount, req.DriverID, actor.UserID)
	}
	return entry, nil
}

// Balance folds a driver's entries into their current total.
func (l *LedgerService) Balance(driverID string) (int, error) {
	if driverID == "" {
		return 0, ErrValidation("driver id is required")
	}
	return l.store.GetTokenBalance(driverID)
}

// Transactions returns a driver's entries, newest first.
func (l *LedgerService) Transactions(driverID string) ([]*models.TokenTransaction, error) {
	if driverID == "" {
		return nil, ErrValidation("driver id is required")
	}
	return l.store.GetTokenTransactions(driverID)
}

// EnqueueRetry records a credit that failed after its milestone committed.
// The reconciliation job replays it under the original reference key.
func (l *LedgerService) EnqueueRetry(bookingID, driverID, stage string, amount int, reason, referenceKey string, cause error) {
	retry := &models.RewardRetry{
		BookingID:    bookingID,
		DriverID:     driverID,
		Stage:        stage,
		Amount:       amount,
		Reason:       reason,
		ReferenceKey: referenceKey,
		LastError:    cause.Error(),
	}
	if _, err := l.store.CreateRewardRetry(retry); err != nil {
		log.Printf("❌ Failed to queue reward retry for %s (%s): %v", bookingID, referenceKey, err)
		return
	}
	log.Printf("⏳ Queued %s reward retry for booking %s (%d tokens)", stage, bookingID, amount)
}

// RetryPending replays queued credits. Returns how many landed this round.
func (l *LedgerService) RetryPending(limit int) int {
	retries, err := l.store.GetPendingRewardRetries(limit)
	if err != nil {
		log.Printf("❌ Failed to load pending reward retries: %v", err)
		return 0
	}

	resolved := 0
	for _, r := range retries {
		_, _, err := l.Credit(r.DriverID, r.Amount, r.Reason, r.ReferenceKey, "")
		r.Attempts++
		if err != nil {
			r.LastError = err.Error()
			log.Printf("⚠️  Reward retry %s still failing (attempt %d): %v", r.RetryID, r.Attempts, err)
		} else {
			now := l.nowFn()
			r.ResolvedAt = &now
			r.LastError = ""
			resolved++
			log.Printf("✅ Reward retry %s resolved: %d tokens to %s", r.RetryID, r.Amount, r.DriverID)
		}
		if err := l.store.UpdateRewardRetry(r); err != nil {
			log.Printf("❌ Failed to update reward retry %s: %v", r.RetryID, err)
		}
	}
	return resolved
}
