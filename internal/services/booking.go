package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
)

// BookingService drives the booking lifecycle: creation from a connect
// request, accept/reject/cancel/complete, soft delete, and the OTP-verified
// pickup and delivery milestones with their reward side effects.
type BookingService struct {
	store   storage.Store
	rewards *RewardService
	ledger  *LedgerService
	otp     *OtpService
	notify  *NotifyService
	nowFn   func() time.Time
}

func NewBookingService(store storage.Store, rewards *RewardService, ledger *LedgerService, otp *OtpService, notify *NotifyService) *BookingService {
	return &BookingService{
		store:   store,
		rewards: rewards,
		ledger:  ledger,
		otp:     otp,
		notify:  notify,
		nowFn:   time.Now,
	}
}

// Create builds a pending booking from an accepted connect request. The
// driver and customer are derived here, once, from the owning trip and
// customer request; the caller must own exactly one of the two sides.
func (s *BookingService) Create(actor models.Actor, req *models.BookingCreateRequest) (*models.Booking, error) {
	if req.TripID == "" || req.CustomerRequestID == "" || req.ConnectRequestID == "" {
		return nil, ErrValidation("trip_id, customer_request_id and connect_request_id are required")
	}
	if req.Price < 0 {
		return nil, ErrValidation("price must not be negative")
	}
	now := s.nowFn()
	if req.PickupDate != nil && !req.PickupDate.After(now) {
		return nil, ErrValidation("pickup_date must be in the future")
	}

	trip, err := s.store.GetTrip(req.TripID)
	if err != nil {
		return nil, ErrNotFound("trip %s not found", req.TripID)
	}
	if !trip.IsActive {
		return nil, ErrNotFound("trip %s not found", req.TripID)
	}
	if trip.Status != models.TripStatusActive {
		return nil, ErrStateViolation("trip %s is %s", trip.TripID, trip.Status)
	}

	request, err := s.store.GetCustomerRequest(req.CustomerRequestID)
	if err != nil {
		return nil, ErrNotFound("customer request %s not found", req.CustomerRequestID)
	}
	if !request.IsActive {
		return nil, ErrNotFound("customer request %s not found", req.CustomerRequestID)
	}
	switch request.Status {
	case models.RequestStatusPending:
		// bookable
	case models.RequestStatusBooked, models.RequestStatusPickedUp, models.RequestStatusDelivered:
		return nil, ErrConflict("customer request %s is already %s", request.RequestID, request.Status)
	default:
		return nil, ErrStateViolation("customer request %s is %s", request.RequestID, request.Status)
	}

	driverID := trip.DriverID
	customerID := request.CustomerID
	if driverID == customerID {
		return nil, ErrForbidden("trip and customer request belong to the same user")
	}

	var recipientID string
	switch actor.UserID {
	case driverID:
		recipientID = customerID
	case customerID:
		recipientID = driverID
	default:
		return nil, ErrForbidden("caller owns neither the trip nor the customer request")
	}

	if exists, err := s.store.HasActivePairBooking(trip.TripID, request.RequestID); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrConflict("an active booking already exists for this trip and request")
	}

	connect, err := s.store.GetConnectRequest(req.ConnectRequestID)
	if err != nil || !connect.IsActive {
		return nil, ErrNotFound("connect request %s not found", req.ConnectRequestID)
	}
	if connect.Status != models.ConnectStatusAccepted {
		return nil, ErrStateViolation("connect request %s is %s, not accepted", connect.ConnectID, connect.Status)
	}
	if connect.TripID != trip.TripID || connect.CustomerRequestID != request.RequestID {
		return nil, ErrValidation("connect request %s links a different trip or request", connect.ConnectID)
	}
	if !connect.Involves(actor.UserID) {
		return nil, ErrForbidden("caller is not a party of connect request %s", connect.ConnectID)
	}
	if !connect.PartySetEquals(driverID, customerID) {
		return nil, ErrValidation("connect request %s was not made between these two parties", connect.ConnectID)
	}

	booking := &models.Booking{
		TripID:            trip.TripID,
		CustomerRequestID: request.RequestID,
		ConnectRequestID:  connect.ConnectID,
		DriverID:          driverID,
		CustomerID:        customerID,
		InitiatorID:       actor.UserID,
		RecipientID:       recipientID,
		Price:             req.Price,
		PickupDate:        req.PickupDate,
		Notes:             req.Notes,
		Status:            models.BookingStatusPending,
		IsActive:          true,
	}
	created, err := s.store.CreateBooking(booking)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrConflict("an active booking already exists for this trip and request")
		}
		return nil, err
	}

	log.Printf("📦 Booking %s created: trip %s ↔ request %s (initiator %s)",
		created.BookingID, created.TripID, created.CustomerRequestID, created.InitiatorID)
	return created, nil
}

// Get returns one booking to its participants or an admin.
func (s *BookingService) Get(actor models.Actor, bookingID string) (*models.Booking, error) {
	return s.getAuthorized(actor, bookingID)
}

// ListMine returns every active booking the actor participates in.
func (s *BookingService) ListMine(actor models.Actor) ([]*models.Booking, error) {
	return s.store.GetBookingsByUser(actor.UserID)
}

// ListByTrip returns a trip's bookings to the trip owner or an admin.
func (s *BookingService) ListByTrip(actor models.Actor, tripID string) ([]*models.Booking, error) {
	trip, err := s.store.GetTrip(tripID)
	if err != nil {
		return nil, ErrNotFound("trip %s not found", tripID)
	}
	if trip.DriverID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden("only the trip owner can list its bookings")
	}
	return s.store.GetBookingsByTrip(tripID)
}

// Accept confirms a pending booking. Only the recipient may accept, at most
// one booking per trip and per customer request can ever be confirmed, and
// the cascade (request marked booked, competing bookings and open connect
// requests rejected) commits atomically with the confirmation. The
// confirmation-stage reward is credited after commit.
func (s *BookingService) Accept(actor models.Actor, bookingID string) (*models.Booking, int, error) {
	booking, err := s.getBooking(bookingID)
	if err != nil {
		return nil, 0, err
	}
	if actor.UserID != booking.RecipientID {
		return nil, 0, ErrForbidden("only the booking recipient can accept")
	}
	if booking.Status != models.BookingStatusPending {
		return nil, 0, ErrStateViolation("cannot accept a %s booking", booking.Status)
	}

	// Reward configuration is resolved before the transition so a missing
	// configuration surfaces as an error instead of a silently skipped
	// payout.
	settings, err := s.rewards.ActiveSettings()
	if err != nil {
		return nil, 0, err
	}
	request, err := s.store.GetCustomerRequest(booking.CustomerRequestID)
	if err != nil {
		return nil, 0, ErrNotFound("customer request %s not found", booking.CustomerRequestID)
	}
	tokens := ComputeStageTokens(settings, request.DistanceKM, models.StageConfirmation)

	now := s.nowFn()
	confirmed, sweep, err := s.store.ConfirmBookingExclusive(booking.BookingID, now)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return nil, 0, ErrConflict("another booking is already confirmed for this trip or request")
		case errors.Is(err, storage.ErrStaleState):
			return nil, 0, ErrStateViolation("booking %s is no longer pending", booking.BookingID)
		case errors.Is(err, storage.ErrNotFound):
			return nil, 0, ErrNotFound("booking %s not found", booking.BookingID)
		}
		return nil, 0, err
	}
	log.Printf("✅ Booking %s confirmed by %s (rejected %d bookings, %d connect requests)",
		confirmed.BookingID, actor.UserID, len(sweep.RejectedBookingIDs), len(sweep.RejectedConnectIDs))

	awarded := s.creditStage(confirmed, models.StageConfirmation, tokens, actor.UserID)
	s.notify.NotifyBookingAccepted(confirmed)
	return confirmed, awarded, nil
}

// Reject declines a pending booking. Recipient only, no ledger effect.
func (s *BookingService) Reject(actor models.Actor, bookingID string) (*models.Booking, error) {
	booking, err := s.getBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != booking.RecipientID {
		return nil, ErrForbidden("only the booking recipient can reject")
	}
	if booking.Status != models.BookingStatusPending {
		return nil, ErrStateViolation("cannot reject a %s booking", booking.Status)
	}

	rejected, err := s.store.RejectBooking(booking.BookingID, s.nowFn())
	if err != nil {
		return nil, s.mapTransitionErr(err, booking.BookingID, "booking %s is no longer pending")
	}
	log.Printf("🚫 Booking %s rejected by %s", rejected.BookingID, actor.UserID)
	return rejected, nil
}

// Cancel handles both cancellation shapes. A pending booking cancels
// immediately. A confirmed booking needs both parties: the first call flags
// the intent, a different participant (or an admin) finalizes it, and the
// confirmation reward is clawed back. Milestone and terminal states cannot
// be cancelled.
func (s *BookingService) Cancel(actor models.Actor, bookingID string, req *models.BookingCancelRequest) (*models.Booking, error) {
	booking, err := s.getAuthorized(actor, bookingID)
	if err != nil {
		return nil, err
	}
	reason := ""
	if req != nil {
		reason = req.Reason
	}
	now := s.nowFn()

	switch booking.Status {
	case models.BookingStatusPending:
		cancelled, err := s.store.CancelPendingBooking(booking.BookingID, reason, actor.UserID, now)
		if err != nil {
			return nil, s.mapTransitionErr(err, booking.BookingID, "booking %s is no longer pending")
		}
		log.Printf("🗑  Booking %s cancelled while pending by %s", cancelled.BookingID, actor.UserID)
		return cancelled, nil

	case models.BookingStatusConfirmed:
		if !booking.CancellationPending {
			flagged, err := s.store.RequestBookingCancellation(booking.BookingID, reason, actor.UserID, now)
			if err != nil {
				return nil, s.mapTransitionErr(err, booking.BookingID, "booking %s changed state, retry the cancellation")
			}
			log.Printf("⏳ Cancellation of booking %s requested by %s, awaiting the other party",
				flagged.BookingID, actor.UserID)
			return flagged, nil
		}
		if booking.CancellationRequestedBy == actor.UserID {
			return nil, ErrForbidden("cancellation already requested; awaiting the other party")
		}
		cancelled, err := s.store.FinalizeBookingCancellation(booking.BookingID, actor.UserID, now)
		if err != nil {
			return nil, s.mapTransitionErr(err, booking.BookingID, "booking %s changed state, retry the cancellation")
		}
		log.Printf("❎ Booking %s cancellation finalized by %s", cancelled.BookingID, actor.UserID)
		s.clawbackConfirmation(cancelled, actor.UserID)
		return cancelled, nil
	}

	return nil, ErrStateViolation("cannot cancel a %s booking", booking.Status)
}

// Complete closes out a confirmed booking. Assigned driver only.
func (s *BookingService) Complete(actor models.Actor, bookingID string) (*models.Booking, error) {
	booking, err := s.getBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != booking.DriverID {
		return nil, ErrForbidden("only the assigned driver can complete")
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, ErrStateViolation("cannot complete a %s booking", booking.Status)
	}

	completed, err := s.store.CompleteBooking(booking.BookingID, s.nowFn())
	if err != nil {
		return nil, s.mapTransitionErr(err, booking.BookingID, "booking %s is no longer confirmed")
	}
	log.Printf("🏁 Booking %s completed by %s", completed.BookingID, actor.UserID)
	return completed, nil
}

// Delete soft-deletes a booking. The row and its status survive for audit;
// the booking just disappears from every listing. Not allowed while the
// freight is on the road or after completion.
func (s *BookingService) Delete(actor models.Actor, bookingID, note string) (*models.Booking, error) {
	booking, err := s.getAuthorized(actor, bookingID)
	if err != nil {
		return nil, err
	}
	switch booking.Status {
	case models.BookingStatusPickedUp:
		return nil, ErrStateViolation("cannot delete a booking in transit")
	case models.BookingStatusCompleted:
		return nil, ErrStateViolation("cannot delete a completed booking")
	}

	deleted, err := s.store.DeactivateBooking(booking.BookingID, actor.UserID, note, s.nowFn())
	if err != nil {
		return nil, s.mapTransitionErr(err, booking.BookingID, "booking %s is already deleted")
	}
	log.Printf("🗑  Booking %s soft-deleted by %s", deleted.BookingID, actor.UserID)
	return deleted, nil
}

// GenerateOtp issues a handover code for the next milestone. Pickup codes
// need a confirmed booking, delivery codes a picked-up one. The code goes to
// the caller's counterparty and only the caller can later verify it.
func (s *BookingService) GenerateOtp(actor models.Actor, bookingID string, req *models.OtpGenerateRequest) (*models.OtpChallenge, string, error) {
	booking, err := s.getAuthorized(actor, bookingID)
	if err != nil {
		return nil, "", err
	}
	if req == nil || !models.ValidOtpKind(req.Kind) {
		return nil, "", ErrValidation("kind must be pickup or delivery")
	}
	switch req.IssuedTo {
	case "", models.RoleDriver, models.RoleCustomer:
	default:
		return nil, "", ErrValidation("issued_to must be driver or customer")
	}

	switch req.Kind {
	case models.OtpKindPickup:
		if booking.Status != models.BookingStatusConfirmed {
			return nil, "", ErrStateViolation("pickup code needs a confirmed booking, not %s", booking.Status)
		}
	case models.OtpKindDelivery:
		if booking.Status != models.BookingStatusPickedUp {
			return nil, "", ErrStateViolation("delivery code needs a picked up booking, not %s", booking.Status)
		}
	}

	issuedTo := req.IssuedTo
	if issuedTo == "" {
		issuedTo = models.RoleCustomer
		if actor.UserID == booking.CustomerID {
			issuedTo = models.RoleDriver
		}
	}
	challenge, code, err := s.otp.Issue(booking, req.Kind, issuedTo, actor.UserID)
	if err != nil {
		return nil, "", err
	}
	log.Printf("🔐 %s code issued for booking %s (to %s, by %s)",
		req.Kind, booking.BookingID, issuedTo, actor.UserID)
	s.notify.RelayOtpCode(booking, challenge, code)
	return challenge, code, nil
}

// VerifyOtp settles a milestone: checks the presented code, enforces the
// slab's elapsed-minutes gate, then transitions the booking, consumes the
// challenge and advances the customer request marker in one atomic store
// operation. The stage reward is credited after commit; a failed credit is
// queued for the reconciler and never rolls the milestone back.
func (s *BookingService) VerifyOtp(actor models.Actor, bookingID string, req *models.OtpVerifyRequest) (*models.Booking, int, error) {
	booking, err := s.getAuthorized(actor, bookingID)
	if err != nil {
		return nil, 0, err
	}
	if req == nil || !models.ValidOtpKind(req.Kind) {
		return nil, 0, ErrValidation("kind must be pickup or delivery")
	}
	if req.Code == "" {
		return nil, 0, ErrValidation("code is required")
	}

	challenge, err := s.otp.CheckCode(actor, booking, req.Kind, req.Code)
	if err != nil {
		return nil, 0, err
	}

	settings, err := s.rewards.ActiveSettings()
	if err != nil {
		return nil, 0, err
	}
	request, err := s.store.GetCustomerRequest(booking.CustomerRequestID)
	if err != nil {
		return nil, 0, ErrNotFound("customer request %s not found", booking.CustomerRequestID)
	}
	slab := ResolveSlab(settings.Slabs, request.DistanceKM)

	now := s.nowFn()
	var settled *models.Booking
	var stage string

	switch req.Kind {
	case models.OtpKindPickup:
		if booking.Status != models.BookingStatusConfirmed || booking.AcceptedAt == nil {
			return nil, 0, ErrStateViolation("pickup needs a confirmed booking, not %s", booking.Status)
		}
		if slab != nil {
			elapsed := int(now.Sub(*booking.AcceptedAt).Minutes())
			if elapsed < slab.MinMinutesConfirmToPickup {
				return nil, 0, ErrMilestoneTooSoon(slab.MinMinutesConfirmToPickup, elapsed)
			}
		}
		stage = models.StagePickup
		settled, err = s.store.SettlePickup(booking.BookingID, challenge.OtpID, now)

	case models.OtpKindDelivery:
		if booking.Status != models.BookingStatusPickedUp || booking.PickupAt == nil {
			return nil, 0, ErrStateViolation("delivery needs a picked up booking, not %s", booking.Status)
		}
		if slab != nil {
			elapsed := int(now.Sub(*booking.PickupAt).Minutes())
			if elapsed < slab.MinMinutesPickupToDelivery {
				return nil, 0, ErrMilestoneTooSoon(slab.MinMinutesPickupToDelivery, elapsed)
			}
		}
		stage = models.StageDelivery
		settled, err = s.store.SettleDelivery(booking.BookingID, challenge.OtpID, now)
	}
	if err != nil {
		return nil, 0, s.mapTransitionErr(err, booking.BookingID, "booking %s changed state during verification")
	}
	log.Printf("📍 Booking %s reached %s (verified by %s)", settled.BookingID, settled.Status, actor.UserID)

	tokens := ComputeStageTokens(settings, request.DistanceKM, stage)
	awarded := s.creditStage(settled, stage, tokens, actor.UserID)
	return settled, awarded, nil
}

// creditStage pays out a milestone reward after its transition committed.
// Returns the amount actually credited this call (0 for replays, skips and
// failures). Failures are queued for the reconciliation job.
func (s *BookingService) creditStage(booking *models.Booking, stage string, tokens int, actorID string) int {
	if tokens <= 0 {
		return 0
	}
	referenceKey := fmt.Sprintf("reward:%s:%s", stage, booking.BookingID)
	reason := fmt.Sprintf("%s reward for booking %s", stage, booking.BookingID)

	_, fresh, err := s.ledger.Credit(booking.DriverID, tokens, reason, referenceKey, actorID)
	if err != nil {
		log.Printf("❌ Failed to credit %d %s tokens for booking %s: %v", tokens, stage, booking.BookingID, err)
		s.ledger.EnqueueRetry(booking.BookingID, booking.DriverID, stage, tokens, reason, referenceKey, err)
		return 0
	}
	if !fresh {
		return 0
	}
	log.Printf("🪙 Credited %d %s tokens to %s for booking %s", tokens, stage, booking.DriverID, booking.BookingID)
	return tokens
}

// clawbackConfirmation reverses the confirmation reward when a confirmed
// booking is cancelled. Recomputed from the currently active settings; a
// failure here is logged and the cancellation stands.
func (s *BookingService) clawbackConfirmation(booking *models.Booking, actorID string) {
	settings, err := s.rewards.ActiveSettings()
	if err != nil {
		log.Printf("⚠️  No reward settings for clawback on booking %s: %v", booking.BookingID, err)
		return
	}
	request, err := s.store.GetCustomerRequest(booking.CustomerRequestID)
	if err != nil {
		log.Printf("⚠️  Customer request lookup failed for clawback on booking %s: %v", booking.BookingID, err)
		return
	}
	tokens := ComputeStageTokens(settings, request.DistanceKM, models.StageConfirmation)
	if tokens <= 0 {
		return
	}

	referenceKey := fmt.Sprintf("clawback:confirmation:%s", booking.BookingID)
	reason := fmt.Sprintf("confirmation reward clawback for cancelled booking %s", booking.BookingID)
	_, _, err = s.ledger.Debit(booking.DriverID, tokens, reason, referenceKey, actorID)
	if err != nil {
		log.Printf("❌ Clawback of %d tokens failed for booking %s: %v", tokens, booking.BookingID, err)
		return
	}
	log.Printf("↩️  Clawed back %d confirmation tokens from %s for booking %s",
		tokens, booking.DriverID, booking.BookingID)
}

// getBooking loads an active booking without an authorization check.
func (s *BookingService) getBooking(bookingID string) (*models.Booking, error) {
	if bookingID == "" {
		return nil, ErrValidation("booking id is required")
	}
	booking, err := s.store.GetBooking(bookingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound("booking %s not found", bookingID)
		}
		return nil, err
	}
	return booking, nil
}

// getAuthorized loads a booking and requires the actor to be a participant
// or an admin.
func (s *BookingService) getAuthorized(actor models.Actor, bookingID string) (*models.Booking, error) {
	booking, err := s.getBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		return nil, ErrForbidden("not a participant of booking %s", bookingID)
	}
	return booking, nil
}

// mapTransitionErr translates store sentinels from a lost transition race.
func (s *BookingService) mapTransitionErr(err error, bookingID, violationFormat string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound("booking %s not found", bookingID)
	case errors.Is(err, storage.ErrStaleState):
		return ErrStateViolation(violationFormat, bookingID)
	case errors.Is(err, storage.ErrConflict):
		return ErrConflict("booking %s conflicts with another booking", bookingID)
	}
	return err
}
