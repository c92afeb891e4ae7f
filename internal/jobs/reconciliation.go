package jobs

import (
	"log"
	"time"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/services"
)

const (
	otpPurgeInterval    = 5 * time.Minute
	rewardRetryInterval = 1 * time.Minute
	rewardRetryBatch    = 25
)

// ReconciliationJob runs the background cleanup loops: purging expired
// OTP challenges and replaying reward credits that failed at settlement.
type ReconciliationJob struct {
	ledger    *services.LedgerService
	otp       *services.OtpService
	isRunning bool
}

// NewReconciliationJob creates a new reconciliation job scheduler
func NewReconciliationJob(ledger *services.LedgerService, otp *services.OtpService) *ReconciliationJob {
	return &ReconciliationJob{
		ledger:    ledger,
		otp:       otp,
		isRunning: false,
	}
}

// Start begins all reconciliation loops
func (r *ReconciliationJob) Start() {
	if r.isRunning {
		log.Println("Reconciliation jobs already running")
		return
	}

	r.isRunning = true
	log.Println("Starting reconciliation jobs...")

	go r.scheduleOtpPurge()
	go r.scheduleRewardRetries()

	log.Println("All reconciliation jobs started successfully")
}

// Stop halts all reconciliation loops
func (r *ReconciliationJob) Stop() {
	r.isRunning = false
	log.Println("Stopping reconciliation jobs...")
}

// 1. OTP PURGE - Runs every 5 minutes
func (r *ReconciliationJob) scheduleOtpPurge() {
	for r.isRunning {
		time.Sleep(otpPurgeInterval)

		if !r.isRunning {
			break
		}

		r.purgeExpiredOtps()
	}
}

// purgeExpiredOtps removes OTP challenges that passed their expiry
func (r *ReconciliationJob) purgeExpiredOtps() {
	purged, err := r.otp.PurgeExpired()
	if err != nil {
		log.Printf("Error purging expired OTP challenges: %v", err)
		return
	}

	if purged > 0 {
		log.Printf("🧹 Purged %d expired OTP challenges", purged)
	}
}

// 2. REWARD RETRIES - Runs every minute
func (r *ReconciliationJob) scheduleRewardRetries() {
	for r.isRunning {
		time.Sleep(rewardRetryInterval)

		if !r.isRunning {
			break
		}

		r.drainRewardRetries()
	}
}

// drainRewardRetries replays queued reward credits against the ledger
func (r *ReconciliationJob) drainRewardRetries() {
	resolved := r.ledger.RetryPending(rewardRetryBatch)
	if resolved > 0 {
		log.Printf("Reward retries resolved this round: %d", resolved)
	}
}
