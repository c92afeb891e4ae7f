package services

import (
	"testing"
	"time"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
)

// flipCode returns a six digit string guaranteed to differ from code.
func flipCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestGenerateOtpTargetsCounterparty(t *testing.T) {
	m := newMarketplace(t)
	booking := m.confirmedBooking(t)

	challenge, code, err := m.bookings.GenerateOtp(m.driver, booking.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup})
	if err != nil {
		t.Fatalf("GenerateOtp: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", code)
	}
	if challenge.IssuedTo != models.RoleCustomer || challenge.IssuedBy != m.driver.UserID {
		t.Fatalf("expected code issued to customer by driver, got %s by %s", challenge.IssuedTo, challenge.IssuedBy)
	}
	if !challenge.ExpiresAt.Equal(m.clock.now.Add(models.DefaultOtpTTL)) {
		t.Fatalf("unexpected expiry %v", challenge.ExpiresAt)
	}

	// The customer generating flips the direction; an admin is treated like
	// the driver's side and targets the customer.
	fromCustomer, _, err := m.bookings.GenerateOtp(m.customer, booking.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup})
	if err != nil {
		t.Fatalf("GenerateOtp: %v", err)
	}
	if fromCustomer.IssuedTo != models.RoleDriver {
		t.Fatalf("expected code issued to driver, got %s", fromCustomer.IssuedTo)
	}
	fromAdmin, _, err := m.bookings.GenerateOtp(m.admin, booking.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup})
	if err != nil {
		t.Fatalf("GenerateOtp: %v", err)
	}
	if fromAdmin.IssuedTo != models.RoleCustomer {
		t.Fatalf("expected admin-issued code to target customer, got %s", fromAdmin.IssuedTo)
	}

	// An explicit target overrides the counterparty default.
	aimed, _, err := m.bookings.GenerateOtp(m.admin, booking.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup, IssuedTo: models.RoleDriver})
	if err != nil {
		t.Fatalf("GenerateOtp: %v", err)
	}
	if aimed.IssuedTo != models.RoleDriver {
		t.Fatalf("expected explicit target driver, got %s", aimed.IssuedTo)
	}
}

func TestGenerateOtpGuards(t *testing.T) {
	m := newMarketplace(t)
	pending := m.pendingBooking(t)

	_, _, err := m.bookings.GenerateOtp(m.driver, pending.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup})
	wantKind(t, err, KindStateViolation)

	_, _, err = m.bookings.GenerateOtp(m.driver, pending.BookingID, &models.OtpGenerateRequest{Kind: "handover"})
	wantKind(t, err, KindValidationFailed)

	_, _, err = m.bookings.GenerateOtp(m.driver, pending.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup, IssuedTo: "dispatcher"})
	wantKind(t, err, KindValidationFailed)

	stranger := m.newUser(t, "Noor", "9876500009", models.RoleCustomer)
	_, _, err = m.bookings.GenerateOtp(stranger, pending.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup})
	wantKind(t, err, KindForbidden)
}

func TestGenerateOtpDeliveryNeedsPickedUp(t *testing.T) {
	m := newMarketplace(t)
	booking := m.confirmedBooking(t)

	_, _, err := m.bookings.GenerateOtp(m.driver, booking.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindDelivery})
	wantKind(t, err, KindStateViolation)
}

func TestVerifyOtpPickupGate(t *testing.T) {
	m := newMarketplace(t)
	booking := m.confirmedBooking(t)

	_, code, err := m.bookings.GenerateOtp(m.driver, booking.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup})
	if err != nil {
		t.Fatalf("GenerateOtp: %v", err)
	}

	// The slab demands five minutes between confirmation and pickup.
	_, _, err = m.bookings.VerifyOtp(m.driver, booking.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindPickup, Code: code})
	se := wantKind(t, err, KindMilestoneTooSoon)
	if se.RequiredMinutes != 5 || se.ActualMinutes != 0 {
		t.Fatalf("expected gate 5/0, got %d/%d", se.RequiredMinutes, se.ActualMinutes)
	}

	m.clock.Advance(3 * time.Minute)
	_, _, err = m.bookings.VerifyOtp(m.driver, booking.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindPickup, Code: code})
	se = wantKind(t, err, KindMilestoneTooSoon)
	if se.ActualMinutes != 3 {
		t.Fatalf("expected 3 elapsed minutes, got %d", se.ActualMinutes)
	}

	// A failed gate does not consume the code; the same one works once the
	// window has passed.
	m.clock.Advance(2 * time.Minute)
	settled, awarded, err := m.bookings.VerifyOtp(m.driver, booking.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindPickup, Code: code})
	if err != nil {
		t.Fatalf("VerifyOtp: %v", err)
	}
	if settled.Status != models.BookingStatusPickedUp {
		t.Fatalf("expected picked_up status, got %s", settled.Status)
	}
	if settled.PickupAt == nil || !settled.PickupAt.Equal(m.clock.now) {
		t.Fatal("pickup timestamp missing")
	}
	if awarded != 30 {
		t.Fatalf("expected 30 pickup tokens, got %d", awarded)
	}
	if got := m.requestStatus(t, m.request.RequestID); got != models.RequestStatusPickedUp {
		t.Fatalf("expected request picked_up, got %s", got)
	}
	if got := m.balance(t, m.driver.UserID); got != 50 {
		t.Fatalf("expected balance 50 after confirmation and pickup, got %d", got)
	}

	// Codes are single use: the settled challenge is gone.
	_, _, err = m.bookings.VerifyOtp(m.driver, booking.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindPickup, Code: code})
	wantKind(t, err, KindNotFound)
}

func TestVerifyOtpWrongCode(t *testing.T) {
	m := newMarketplace(t)
	booking := m.confirmedBooking(t)
	m.clock.Advance(5 * time.Minute)

	_, code, err := m.bookings.GenerateOtp(m.driver, booking.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup})
	if err != nil {
		t.Fatalf("GenerateOtp: %v", err)
	}

	_, _, err = m.bookings.VerifyOtp(m.driver, booking.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindPickup, Code: flipCode(code)})
	wantKind(t, err, KindOtpInvalid)

	// A wrong guess burns one attempt but the right code still settles.
	settled, _, err := m.bookings.VerifyOtp(m.driver, booking.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindPickup, Code: code})
	if err != nil {
		t.Fatalf("VerifyOtp: %v", err)
	}
	if settled.Status != models.BookingStatusPickedUp {
		t.Fatalf("expected picked_up status, got %s", settled.Status)
	}
}

func TestVerifyOtpExpiredCode(t *testing.T) {
	m := newMarketplace(t)
	booking := m.confirmedBooking(t)

	_, code, err := m.bookings.GenerateOtp(m.driver, booking.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup})
	if err != nil {
		t.Fatalf("GenerateOtp: %v", err)
	}

	m.clock.Advance(models.DefaultOtpTTL + time.Minute)
	_, _, err = m.bookings.VerifyOtp(m.driver, booking.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindPickup, Code: code})
	wantKind(t, err, KindOtpExpired)
}

func TestVerifyOtpIssuerOnly(t *testing.T) {
	m := newMarketplace(t)
	booking := m.confirmedBooking(t)
	m.clock.Advance(5 * time.Minute)

	_, code, err := m.bookings.GenerateOtp(m.driver, booking.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup})
	if err != nil {
		t.Fatalf("GenerateOtp: %v", err)
	}

	// The customer holds the code but cannot verify it; only the issuer can.
	_, _, err = m.bookings.VerifyOtp(m.customer, booking.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindPickup, Code: code})
	wantKind(t, err, KindForbidden)

	settled, _, err := m.bookings.VerifyOtp(m.driver, booking.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindPickup, Code: code})
	if err != nil {
		t.Fatalf("VerifyOtp: %v", err)
	}
	if settled.Status != models.BookingStatusPickedUp {
		t.Fatalf("expected picked_up status, got %s", settled.Status)
	}
}

func TestVerifyOtpOutsideSlabSkipsGate(t *testing.T) {
	m := newMarketplaceBare(t)
	_, err := m.store.CreateRewardSettings(&models.RewardSettings{
		ConfirmationPct: 20,
		PickupPct:       30,
		DeliveryPct:     50,
		EffectiveAt:     m.clock.now.Add(-time.Hour),
		IsActive:        true,
		Slabs: []models.DistanceSlab{
			{MinKM: 0, MaxKM: 500, BaseTokens: 100, MinMinutesConfirmToPickup: 5, MinMinutesPickupToDelivery: 5},
		},
	})
	if err != nil {
		t.Fatalf("CreateRewardSettings: %v", err)
	}

	// 900 km falls outside every slab: no tokens, and no time gate either.
	farTrip := m.newTrip(t, m.driver, 900)
	farRequest := m.newRequest(t, m.customer, 900)
	farConnect := m.newConnect(t, farTrip, farRequest, m.customer.UserID, m.driver.UserID, models.ConnectStatusAccepted)

	booking, err := m.bookings.Create(m.customer, &models.BookingCreateRequest{
		TripID:            farTrip.TripID,
		CustomerRequestID: farRequest.RequestID,
		ConnectRequestID:  farConnect.ConnectID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, awarded, err := m.bookings.Accept(m.driver, booking.BookingID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if awarded != 0 {
		t.Fatalf("expected no confirmation tokens outside slabs, got %d", awarded)
	}

	_, code, err := m.bookings.GenerateOtp(m.driver, booking.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup})
	if err != nil {
		t.Fatalf("GenerateOtp: %v", err)
	}
	settled, awarded, err := m.bookings.VerifyOtp(m.driver, booking.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindPickup, Code: code})
	if err != nil {
		t.Fatalf("VerifyOtp: %v", err)
	}
	if settled.Status != models.BookingStatusPickedUp {
		t.Fatalf("expected picked_up status, got %s", settled.Status)
	}
	if awarded != 0 {
		t.Fatalf("expected no pickup tokens outside slabs, got %d", awarded)
	}
	if got := m.balance(t, m.driver.UserID); got != 0 {
		t.Fatalf("expected empty ledger, got balance %d", got)
	}
}

func TestBookingLifecycleHappyPath(t *testing.T) {
	m := newMarketplace(t)

	booking, err := m.bookings.Create(m.customer, m.createPayload())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	confirmed, awarded, err := m.bookings.Accept(m.driver, booking.BookingID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if awarded != 20 {
		t.Fatalf("expected 20 confirmation tokens, got %d", awarded)
	}

	// Pickup after the five minute gate.
	m.clock.Advance(5 * time.Minute)
	_, pickupCode, err := m.bookings.GenerateOtp(m.driver, confirmed.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindPickup})
	if err != nil {
		t.Fatalf("GenerateOtp (pickup): %v", err)
	}
	pickedUp, awarded, err := m.bookings.VerifyOtp(m.driver, confirmed.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindPickup, Code: pickupCode})
	if err != nil {
		t.Fatalf("VerifyOtp (pickup): %v", err)
	}
	if awarded != 30 {
		t.Fatalf("expected 30 pickup tokens, got %d", awarded)
	}

	// Delivery, this time issued and verified from the customer's side.
	m.clock.Advance(5 * time.Minute)
	deliveryChallenge, deliveryCode, err := m.bookings.GenerateOtp(m.customer, pickedUp.BookingID, &models.OtpGenerateRequest{Kind: models.OtpKindDelivery})
	if err != nil {
		t.Fatalf("GenerateOtp (delivery): %v", err)
	}
	if deliveryChallenge.IssuedTo != models.RoleDriver {
		t.Fatalf("expected delivery code issued to driver, got %s", deliveryChallenge.IssuedTo)
	}
	delivered, awarded, err := m.bookings.VerifyOtp(m.customer, pickedUp.BookingID, &models.OtpVerifyRequest{Kind: models.OtpKindDelivery, Code: deliveryCode})
	if err != nil {
		t.Fatalf("VerifyOtp (delivery): %v", err)
	}
	if awarded != 50 {
		t.Fatalf("expected 50 delivery tokens, got %d", awarded)
	}
	if delivered.Status != models.BookingStatusDelivered {
		t.Fatalf("expected delivered status, got %s", delivered.Status)
	}
	if delivered.DeliveredAt == nil || !delivered.DeliveredAt.Equal(m.clock.now) {
		t.Fatal("delivery timestamp missing")
	}

	if got := m.requestStatus(t, m.request.RequestID); got != models.RequestStatusDelivered {
		t.Fatalf("expected request delivered, got %s", got)
	}
	if got := m.balance(t, m.driver.UserID); got != 100 {
		t.Fatalf("expected full 100 token payout, got %d", got)
	}
	entries, err := m.ledger.Transactions(m.driver.UserID)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected three ledger entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Direction != models.DirectionCredit {
			t.Fatalf("expected only credits, got %s", entry.Direction)
		}
	}

	// Nothing moves a delivered booking.
	_, _, err = m.bookings.Accept(m.driver, delivered.BookingID)
	wantKind(t, err, KindStateViolation)
	_, err = m.bookings.Complete(m.driver, delivered.BookingID)
	wantKind(t, err, KindStateViolation)
}
