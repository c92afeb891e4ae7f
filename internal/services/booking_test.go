package services

import (
	"testing"
	"time"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
)

// fakeClock lets tests move time for every service at once.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// marketplace is a seeded memory store with one driver, one customer, one
// admin, one trip, one shipment request and an accepted connect request
// between them. Reward settings pay 20/30/50% of 100 base tokens for trips
// under 500 km, with 5-minute gates between milestones.
type marketplace struct {
	store *storage.MemoryStore
	clock *fakeClock

	bookings *BookingService
	rewards  *RewardService
	ledger   *LedgerService
	otp      *OtpService

	driver   models.Actor
	customer models.Actor
	admin    models.Actor

	trip    *models.Trip
	request *models.CustomerRequest
	connect *models.ConnectRequest
}

// newMarketplaceBare wires services and parties but publishes no reward
// settings, for tests exercising the missing-configuration path.
func newMarketplaceBare(t *testing.T) *marketplace {
	t.Helper()

	m := &marketplace{
		store: storage.NewMemoryStore(),
		clock: &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	m.rewards = NewRewardService(m.store)
	m.rewards.nowFn = m.clock.Now
	m.ledger = NewLedgerService(m.store)
	m.ledger.nowFn = m.clock.Now
	m.otp = NewOtpService(m.store)
	m.otp.nowFn = m.clock.Now
	m.bookings = NewBookingService(m.store, m.rewards, m.ledger, m.otp, NewNotifyService(m.store))
	m.bookings.nowFn = m.clock.Now

	m.driver = m.newUser(t, "Ravi", "9876500001", models.RoleDriver)
	m.customer = m.newUser(t, "Meena", "9876500002", models.RoleCustomer)
	m.admin = m.newUser(t, "Ops", "9876500003", models.RoleAdmin)

	m.trip = m.newTrip(t, m.driver, 350)
	m.request = m.newRequest(t, m.customer, 350)
	m.connect = m.newConnect(t, m.trip, m.request, m.customer.UserID, m.driver.UserID, models.ConnectStatusAccepted)
	return m
}

func newMarketplace(t *testing.T) *marketplace {
	t.Helper()

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
	return m
}

func (m *marketplace) newUser(t *testing.T, name, phone, role string) models.Actor {
	t.Helper()
	user, err := m.store.CreateUser(&models.User{Name: name, Phone: phone, Role: role, IsActive: true})
	if err != nil {
		t.Fatalf("CreateUser %s: %v", name, err)
	}
	return models.Actor{UserID: user.UserID, Role: role}
}

func (m *marketplace) newTrip(t *testing.T, driver models.Actor, distanceKM float64) *models.Trip {
	t.Helper()
	trip, err := m.store.CreateTrip(&models.Trip{
		DriverID:   driver.UserID,
		FromCity:   "Chennai",
		ToCity:     "Bengaluru",
		DistanceKM: distanceKM,
		VehicleNo:  "TN01AB1234",
		Status:     models.TripStatusActive,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	return trip
}

func (m *marketplace) newRequest(t *testing.T, customer models.Actor, distanceKM float64) *models.CustomerRequest {
	t.Helper()
	request, err := m.store.CreateCustomerRequest(&models.CustomerRequest{
		CustomerID: customer.UserID,
		FromCity:   "Chennai",
		ToCity:     "Bengaluru",
		DistanceKM: distanceKM,
		Material:   "Textiles",
		WeightTon:  4,
		Status:     models.RequestStatusPending,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("CreateCustomerRequest: %v", err)
	}
	return request
}

func (m *marketplace) newConnect(t *testing.T, trip *models.Trip, request *models.CustomerRequest, initiatorID, recipientID, status string) *models.ConnectRequest {
	t.Helper()
	connect, err := m.store.CreateConnectRequest(&models.ConnectRequest{
		TripID:            trip.TripID,
		CustomerRequestID: request.RequestID,
		InitiatorID:       initiatorID,
		RecipientID:       recipientID,
		Status:            status,
		IsActive:          true,
	})
	if err != nil {
		t.Fatalf("CreateConnectRequest: %v", err)
	}
	return connect
}

func (m *marketplace) createPayload() *models.BookingCreateRequest {
	return &models.BookingCreateRequest{
		TripID:            m.trip.TripID,
		CustomerRequestID: m.request.RequestID,
		ConnectRequestID:  m.connect.ConnectID,
		Price:             18000,
	}
}

func (m *marketplace) pendingBooking(t *testing.T) *models.Booking {
	t.Helper()
	booking, err := m.bookings.Create(m.customer, m.createPayload())
	if err != nil {
		t.Fatalf("Create booking: %v", err)
	}
	return booking
}

func (m *marketplace) confirmedBooking(t *testing.T) *models.Booking {
	t.Helper()
	booking := m.pendingBooking(t)
	confirmed, _, err := m.bookings.Accept(m.driver, booking.BookingID)
	if err != nil {
		t.Fatalf("Accept booking: %v", err)
	}
	return confirmed
}

func (m *marketplace) balance(t *testing.T, driverID string) int {
	t.Helper()
	got, err := m.ledger.Balance(driverID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return got
}

func (m *marketplace) requestStatus(t *testing.T, requestID string) string {
	t.Helper()
	request, err := m.store.GetCustomerRequest(requestID)
	if err != nil {
		t.Fatalf("GetCustomerRequest: %v", err)
	}
	return request.Status
}

// wantKind asserts err is a classified service error of the given kind.
func wantKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	se, ok := AsServiceError(err)
	if !ok {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
	if se.Kind != kind {
		t.Fatalf("expected %s error, got %s (%s)", kind, se.Kind, se.Message)
	}
	return se
}

func TestCreateBookingDerivesParties(t *testing.T) {
	m := newMarketplace(t)

	booking, err := m.bookings.Create(m.customer, m.createPayload())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if booking.Status != models.BookingStatusPending {
		t.Fatalf("expected pending status, got %s", booking.Status)
	}
	if booking.DriverID != m.driver.UserID || booking.CustomerID != m.customer.UserID {
		t.Fatalf("parties not derived from trip and request")
	}
	if booking.InitiatorID != m.customer.UserID {
		t.Fatalf("expected initiator %s, got %s", m.customer.UserID, booking.InitiatorID)
	}
	if booking.RecipientID != m.driver.UserID {
		t.Fatalf("expected recipient %s, got %s", m.driver.UserID, booking.RecipientID)
	}
	if !booking.IsActive {
		t.Fatal("expected new booking to be active")
	}
}

func TestCreateBookingByDriverTargetsCustomer(t *testing.T) {
	m := newMarketplace(t)

	booking, err := m.bookings.Create(m.driver, m.createPayload())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if booking.InitiatorID != m.driver.UserID || booking.RecipientID != m.customer.UserID {
		t.Fatalf("expected driver -> customer, got %s -> %s", booking.InitiatorID, booking.RecipientID)
	}
}

func TestCreateBookingInputValidation(t *testing.T) {
	past := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		mutate func(req *models.BookingCreateRequest)
	}{
		{"missing trip id", func(req *models.BookingCreateRequest) { req.TripID = "" }},
		{"missing request id", func(req *models.BookingCreateRequest) { req.CustomerRequestID = "" }},
		{"missing connect id", func(req *models.BookingCreateRequest) { req.ConnectRequestID = "" }},
		{"negative price", func(req *models.BookingCreateRequest) { req.Price = -1 }},
		{"pickup date in the past", func(req *models.BookingCreateRequest) { req.PickupDate = &past }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMarketplace(t)
			req := m.createPayload()
			tc.mutate(req)
			_, err := m.bookings.Create(m.customer, req)
			wantKind(t, err, KindValidationFailed)
		})
	}
}

func TestCreateBookingGuards(t *testing.T) {
	t.Run("unknown trip", func(t *testing.T) {
		m := newMarketplace(t)
		req := m.createPayload()
		req.TripID = "TRP0000000"
		_, err := m.bookings.Create(m.customer, req)
		wantKind(t, err, KindNotFound)
	})

	t.Run("deactivated trip hidden", func(t *testing.T) {
		m := newMarketplace(t)
		gone, err := m.store.CreateTrip(&models.Trip{
			DriverID: m.driver.UserID, DistanceKM: 350,
			Status: models.TripStatusActive, IsActive: false,
		})
		if err != nil {
			t.Fatalf("CreateTrip: %v", err)
		}
		req := m.createPayload()
		req.TripID = gone.TripID
		_, err = m.bookings.Create(m.customer, req)
		wantKind(t, err, KindNotFound)
	})

	t.Run("closed trip", func(t *testing.T) {
		m := newMarketplace(t)
		closed, err := m.store.CreateTrip(&models.Trip{
			DriverID: m.driver.UserID, DistanceKM: 350,
			Status: models.TripStatusClosed, IsActive: true,
		})
		if err != nil {
			t.Fatalf("CreateTrip: %v", err)
		}
		req := m.createPayload()
		req.TripID = closed.TripID
		_, err = m.bookings.Create(m.customer, req)
		wantKind(t, err, KindStateViolation)
	})

	t.Run("request already booked", func(t *testing.T) {
		m := newMarketplace(t)
		taken, err := m.store.CreateCustomerRequest(&models.CustomerRequest{
			CustomerID: m.customer.UserID, DistanceKM: 350,
			Status: models.RequestStatusBooked, IsActive: true,
		})
		if err != nil {
			t.Fatalf("CreateCustomerRequest: %v", err)
		}
		req := m.createPayload()
		req.CustomerRequestID = taken.RequestID
		_, err = m.bookings.Create(m.customer, req)
		wantKind(t, err, KindConflict)
	})

	t.Run("cancelled request", func(t *testing.T) {
		m := newMarketplace(t)
		cancelled, err := m.store.CreateCustomerRequest(&models.CustomerRequest{
			CustomerID: m.customer.UserID, DistanceKM: 350,
			Status: models.RequestStatusCancelled, IsActive: true,
		})
		if err != nil {
			t.Fatalf("CreateCustomerRequest: %v", err)
		}
		req := m.createPayload()
		req.CustomerRequestID = cancelled.RequestID
		_, err = m.bookings.Create(m.customer, req)
		wantKind(t, err, KindStateViolation)
	})

	t.Run("trip and request share an owner", func(t *testing.T) {
		m := newMarketplace(t)
		ownRequest := m.newRequest(t, m.driver, 350)
		connect := m.newConnect(t, m.trip, ownRequest, m.driver.UserID, m.driver.UserID, models.ConnectStatusAccepted)
		req := &models.BookingCreateRequest{
			TripID:            m.trip.TripID,
			CustomerRequestID: ownRequest.RequestID,
			ConnectRequestID:  connect.ConnectID,
		}
		_, err := m.bookings.Create(m.driver, req)
		wantKind(t, err, KindForbidden)
	})

	t.Run("caller owns neither side", func(t *testing.T) {
		m := newMarketplace(t)
		stranger := m.newUser(t, "Noor", "9876500009", models.RoleCustomer)
		_, err := m.bookings.Create(stranger, m.createPayload())
		wantKind(t, err, KindForbidden)
	})

	t.Run("connect request not accepted", func(t *testing.T) {
		m := newMarketplace(t)
		open := m.newConnect(t, m.trip, m.request, m.customer.UserID, m.driver.UserID, models.ConnectStatusPending)
		req := m.createPayload()
		req.ConnectRequestID = open.ConnectID
		_, err := m.bookings.Create(m.customer, req)
		wantKind(t, err, KindStateViolation)
	})

	t.Run("connect request links another pair", func(t *testing.T) {
		m := newMarketplace(t)
		otherTrip := m.newTrip(t, m.driver, 350)
		offPair := m.newConnect(t, otherTrip, m.request, m.customer.UserID, m.driver.UserID, models.ConnectStatusAccepted)
		req := m.createPayload()
		req.ConnectRequestID = offPair.ConnectID
		_, err := m.bookings.Create(m.customer, req)
		wantKind(t, err, KindValidationFailed)
	})

	t.Run("connect request between other parties", func(t *testing.T) {
		m := newMarketplace(t)
		stranger := m.newUser(t, "Noor", "9876500009", models.RoleCustomer)
		offParty := m.newConnect(t, m.trip, m.request, m.customer.UserID, stranger.UserID, models.ConnectStatusAccepted)
		req := m.createPayload()
		req.ConnectRequestID = offParty.ConnectID
		_, err := m.bookings.Create(m.customer, req)
		wantKind(t, err, KindValidationFailed)
	})

	t.Run("active booking already exists for the pair", func(t *testing.T) {
		m := newMarketplace(t)
		m.pendingBooking(t)
		_, err := m.bookings.Create(m.driver, m.createPayload())
		wantKind(t, err, KindConflict)
	})
}

func TestAcceptBooking(t *testing.T) {
	m := newMarketplace(t)
	booking := m.pendingBooking(t)

	confirmed, awarded, err := m.bookings.Accept(m.driver, booking.BookingID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if confirmed.Status != models.BookingStatusConfirmed {
		t.Fatalf("expected confirmed status, got %s", confirmed.Status)
	}
	if confirmed.AcceptedAt == nil || !confirmed.AcceptedAt.Equal(m.clock.now) {
		t.Fatal("accepted timestamp missing")
	}
	if !confirmed.RecipientAccepted {
		t.Fatal("expected recipient_accepted to be set")
	}
	if got := m.requestStatus(t, m.request.RequestID); got != models.RequestStatusBooked {
		t.Fatalf("expected request booked, got %s", got)
	}
	if awarded != 20 {
		t.Fatalf("expected 20 confirmation tokens, got %d", awarded)
	}
	if got := m.balance(t, m.driver.UserID); got != 20 {
		t.Fatalf("expected driver balance 20, got %d", got)
	}
}

func TestAcceptBookingOnlyRecipient(t *testing.T) {
	m := newMarketplace(t)
	booking := m.pendingBooking(t)

	if _, _, err := m.bookings.Accept(m.customer, booking.BookingID); err == nil {
		t.Fatal("expected initiator accept to fail")
	} else {
		wantKind(t, err, KindForbidden)
	}

	if _, _, err := m.bookings.Accept(m.driver, booking.BookingID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	_, _, err := m.bookings.Accept(m.driver, booking.BookingID)
	wantKind(t, err, KindStateViolation)
}

func TestAcceptSweepsRivals(t *testing.T) {
	m := newMarketplace(t)
	booking := m.pendingBooking(t)

	// Rival booking for the same request via another driver's trip.
	driver2 := m.newUser(t, "Suresh", "9876500004", models.RoleDriver)
	trip2 := m.newTrip(t, driver2, 350)
	connect2 := m.newConnect(t, trip2, m.request, m.customer.UserID, driver2.UserID, models.ConnectStatusAccepted)
	rivalSameRequest, err := m.bookings.Create(m.customer, &models.BookingCreateRequest{
		TripID:            trip2.TripID,
		CustomerRequestID: m.request.RequestID,
		ConnectRequestID:  connect2.ConnectID,
	})
	if err != nil {
		t.Fatalf("Create rival booking: %v", err)
	}

	// Rival booking for the same trip via another customer's request.
	customer2 := m.newUser(t, "Latha", "9876500005", models.RoleCustomer)
	request2 := m.newRequest(t, customer2, 350)
	connect3 := m.newConnect(t, m.trip, request2, customer2.UserID, m.driver.UserID, models.ConnectStatusAccepted)
	rivalSameTrip, err := m.bookings.Create(customer2, &models.BookingCreateRequest{
		TripID:            m.trip.TripID,
		CustomerRequestID: request2.RequestID,
		ConnectRequestID:  connect3.ConnectID,
	})
	if err != nil {
		t.Fatalf("Create rival booking: %v", err)
	}

	// Open handshake on the winning request, and one on the unrelated
	// request that must survive the sweep.
	driver3 := m.newUser(t, "Kumar", "9876500006", models.RoleDriver)
	trip3 := m.newTrip(t, driver3, 350)
	sweptConnect := m.newConnect(t, trip3, m.request, m.customer.UserID, driver3.UserID, models.ConnectStatusPending)
	survivor := m.newConnect(t, trip3, request2, customer2.UserID, driver3.UserID, models.ConnectStatusPending)

	_, _, err = m.bookings.Accept(m.driver, booking.BookingID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	for _, rival := range []string{rivalSameRequest.BookingID, rivalSameTrip.BookingID} {
		got, err := m.store.GetBooking(rival)
		if err != nil {
			t.Fatalf("GetBooking %s: %v", rival, err)
		}
		if got.Status != models.BookingStatusRejected {
			t.Fatalf("expected rival %s rejected, got %s", rival, got.Status)
		}
		if got.RejectedAt == nil {
			t.Fatalf("rival %s missing rejection timestamp", rival)
		}
	}

	swept, err := m.store.GetConnectRequest(sweptConnect.ConnectID)
	if err != nil {
		t.Fatalf("GetConnectRequest: %v", err)
	}
	if swept.Status != models.ConnectStatusRejected {
		t.Fatalf("expected open handshake rejected, got %s", swept.Status)
	}
	alive, err := m.store.GetConnectRequest(survivor.ConnectID)
	if err != nil {
		t.Fatalf("GetConnectRequest: %v", err)
	}
	if alive.Status != models.ConnectStatusPending {
		t.Fatalf("expected unrelated handshake untouched, got %s", alive.Status)
	}

	// A swept rival can no longer be accepted.
	_, _, err = m.bookings.Accept(driver2, rivalSameRequest.BookingID)
	wantKind(t, err, KindStateViolation)
}

func TestAcceptBookingWithoutSettings(t *testing.T) {
	m := newMarketplaceBare(t)
	booking := m.pendingBooking(t)

	_, _, err := m.bookings.Accept(m.driver, booking.BookingID)
	wantKind(t, err, KindConfigurationMissing)

	got, err := m.store.GetBooking(booking.BookingID)
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if got.Status != models.BookingStatusPending {
		t.Fatalf("expected booking still pending, got %s", got.Status)
	}
	if got := m.balance(t, m.driver.UserID); got != 0 {
		t.Fatalf("expected no tokens credited, got %d", got)
	}
}

func TestRejectBooking(t *testing.T) {
	m := newMarketplace(t)
	booking := m.pendingBooking(t)

	if _, err := m.bookings.Reject(m.customer, booking.BookingID); err == nil {
		t.Fatal("expected initiator reject to fail")
	} else {
		wantKind(t, err, KindForbidden)
	}

	rejected, err := m.bookings.Reject(m.driver, booking.BookingID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != models.BookingStatusRejected {
		t.Fatalf("expected rejected status, got %s", rejected.Status)
	}
	if rejected.RejectedAt == nil {
		t.Fatal("rejection timestamp missing")
	}
	if got := m.balance(t, m.driver.UserID); got != 0 {
		t.Fatalf("expected no tokens on reject, got %d", got)
	}

	_, err = m.bookings.Reject(m.driver, booking.BookingID)
	wantKind(t, err, KindStateViolation)
}

func TestCancelPendingBooking(t *testing.T) {
	m := newMarketplace(t)
	booking := m.pendingBooking(t)

	stranger := m.newUser(t, "Noor", "9876500009", models.RoleCustomer)
	_, err := m.bookings.Cancel(stranger, booking.BookingID, nil)
	wantKind(t, err, KindForbidden)

	cancelled, err := m.bookings.Cancel(m.customer, booking.BookingID, &models.BookingCancelRequest{Reason: "found another truck"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != models.BookingStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}
	if cancelled.CancellationReason != "found another truck" {
		t.Fatalf("reason not recorded, got %q", cancelled.CancellationReason)
	}
	if cancelled.CancellationRequestedBy != m.customer.UserID {
		t.Fatalf("requester not recorded, got %q", cancelled.CancellationRequestedBy)
	}
	if got := m.requestStatus(t, m.request.RequestID); got != models.RequestStatusPending {
		t.Fatalf("expected request back to pending, got %s", got)
	}
}

func TestCancelConfirmedNeedsBothParties(t *testing.T) {
	m := newMarketplace(t)
	booking := m.confirmedBooking(t)
	if got := m.balance(t, m.driver.UserID); got != 20 {
		t.Fatalf("expected confirmation payout before cancel, got %d", got)
	}

	// First call only flags the intent.
	flagged, err := m.bookings.Cancel(m.customer, booking.BookingID, &models.BookingCancelRequest{Reason: "cargo not ready"})
	if err != nil {
		t.Fatalf("Cancel (request): %v", err)
	}
	if flagged.Status != models.BookingStatusConfirmed {
		t.Fatalf("expected still confirmed, got %s", flagged.Status)
	}
	if !flagged.CancellationPending {
		t.Fatal("expected cancellation_pending to be set")
	}

	// The same party cannot finalize its own request.
	_, err = m.bookings.Cancel(m.customer, booking.BookingID, nil)
	wantKind(t, err, KindForbidden)

	// The other party finalizes, and the confirmation reward is clawed back.
	cancelled, err := m.bookings.Cancel(m.driver, booking.BookingID, nil)
	if err != nil {
		t.Fatalf("Cancel (finalize): %v", err)
	}
	if cancelled.Status != models.BookingStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}
	if cancelled.CancellationPending {
		t.Fatal("expected cancellation_pending cleared")
	}
	if cancelled.CancellationConfirmedBy != m.driver.UserID {
		t.Fatalf("finalizer not recorded, got %q", cancelled.CancellationConfirmedBy)
	}
	if got := m.balance(t, m.driver.UserID); got != 0 {
		t.Fatalf("expected clawback to zero the balance, got %d", got)
	}
	if got := m.requestStatus(t, m.request.RequestID); got != models.RequestStatusPending {
		t.Fatalf("expected request released to pending, got %s", got)
	}

	entries, err := m.ledger.Transactions(m.driver.UserID)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected credit plus clawback, got %d entries", len(entries))
	}
	if entries[0].Direction != models.DirectionDebit {
		t.Fatalf("expected newest entry to be the debit, got %s", entries[0].Direction)
	}
}

func TestCancelConfirmedAdminFinalizes(t *testing.T) {
	m := newMarketplace(t)
	booking := m.confirmedBooking(t)

	if _, err := m.bookings.Cancel(m.driver, booking.BookingID, nil); err != nil {
		t.Fatalf("Cancel (request): %v", err)
	}
	cancelled, err := m.bookings.Cancel(m.admin, booking.BookingID, nil)
	if err != nil {
		t.Fatalf("Cancel (admin finalize): %v", err)
	}
	if cancelled.Status != models.BookingStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}
}

func TestCancelRefusedPastConfirmation(t *testing.T) {
	m := newMarketplace(t)
	now := m.clock.now

	for _, status := range []string{
		models.BookingStatusPickedUp,
		models.BookingStatusDelivered,
		models.BookingStatusCompleted,
	} {
		booking, err := m.store.CreateBooking(&models.Booking{
			TripID:            m.trip.TripID,
			CustomerRequestID: m.request.RequestID,
			DriverID:          m.driver.UserID,
			CustomerID:        m.customer.UserID,
			InitiatorID:       m.customer.UserID,
			RecipientID:       m.driver.UserID,
			Status:            status,
			PickupAt:          &now,
			IsActive:          true,
		})
		if err != nil {
			t.Fatalf("CreateBooking (%s): %v", status, err)
		}
		_, err = m.bookings.Cancel(m.customer, booking.BookingID, nil)
		wantKind(t, err, KindStateViolation)
	}
}

func TestCompleteBooking(t *testing.T) {
	m := newMarketplace(t)
	booking := m.confirmedBooking(t)

	if _, err := m.bookings.Complete(m.customer, booking.BookingID); err == nil {
		t.Fatal("expected customer complete to fail")
	} else {
		wantKind(t, err, KindForbidden)
	}

	completed, err := m.bookings.Complete(m.driver, booking.BookingID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completed.Status != models.BookingStatusCompleted {
		t.Fatalf("expected completed status, got %s", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Fatal("completion timestamp missing")
	}
	if got := m.requestStatus(t, m.request.RequestID); got != models.RequestStatusCompleted {
		t.Fatalf("expected request completed, got %s", got)
	}

	_, err = m.bookings.Complete(m.driver, booking.BookingID)
	wantKind(t, err, KindStateViolation)
}

func TestCompleteClearsCancellationFlag(t *testing.T) {
	m := newMarketplace(t)
	booking := m.confirmedBooking(t)

	if _, err := m.bookings.Cancel(m.customer, booking.BookingID, nil); err != nil {
		t.Fatalf("Cancel (request): %v", err)
	}
	completed, err := m.bookings.Complete(m.driver, booking.BookingID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completed.CancellationPending {
		t.Fatal("expected cancellation flag cleared on completion")
	}
}

func TestDeleteBooking(t *testing.T) {
	m := newMarketplace(t)

	t.Run("pending booking", func(t *testing.T) {
		booking := m.pendingBooking(t)
		deleted, err := m.bookings.Delete(m.customer, booking.BookingID, "created by mistake")
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if deleted.IsActive {
			t.Fatal("expected booking deactivated")
		}
		if deleted.DeactivatedBy != m.customer.UserID || deleted.DeactivationNote != "created by mistake" {
			t.Fatal("deactivation audit fields missing")
		}
		_, err = m.bookings.Get(m.customer, booking.BookingID)
		wantKind(t, err, KindNotFound)
	})

	t.Run("in transit", func(t *testing.T) {
		now := m.clock.now
		booking, err := m.store.CreateBooking(&models.Booking{
			TripID:            m.trip.TripID,
			CustomerRequestID: m.request.RequestID,
			DriverID:          m.driver.UserID,
			CustomerID:        m.customer.UserID,
			RecipientID:       m.driver.UserID,
			Status:            models.BookingStatusPickedUp,
			PickupAt:          &now,
			IsActive:          true,
		})
		if err != nil {
			t.Fatalf("CreateBooking: %v", err)
		}
		_, err = m.bookings.Delete(m.driver, booking.BookingID, "")
		wantKind(t, err, KindStateViolation)
	})

	t.Run("completed", func(t *testing.T) {
		booking, err := m.store.CreateBooking(&models.Booking{
			TripID:            m.trip.TripID,
			CustomerRequestID: m.request.RequestID,
			DriverID:          m.driver.UserID,
			CustomerID:        m.customer.UserID,
			RecipientID:       m.driver.UserID,
			Status:            models.BookingStatusCompleted,
			IsActive:          true,
		})
		if err != nil {
			t.Fatalf("CreateBooking: %v", err)
		}
		_, err = m.bookings.Delete(m.driver, booking.BookingID, "")
		wantKind(t, err, KindStateViolation)
	})
}

func TestListBookings(t *testing.T) {
	m := newMarketplace(t)
	booking := m.pendingBooking(t)

	mine, err := m.bookings.ListMine(m.driver)
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(mine) != 1 || mine[0].BookingID != booking.BookingID {
		t.Fatalf("expected driver to see the booking, got %d entries", len(mine))
	}

	stranger := m.newUser(t, "Noor", "9876500009", models.RoleCustomer)
	none, err := m.bookings.ListMine(stranger)
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected stranger to see nothing, got %d entries", len(none))
	}

	if _, err := m.bookings.ListByTrip(m.customer, m.trip.TripID); err == nil {
		t.Fatal("expected non-owner trip listing to fail")
	} else {
		wantKind(t, err, KindForbidden)
	}
	byTrip, err := m.bookings.ListByTrip(m.admin, m.trip.TripID)
	if err != nil {
		t.Fatalf("ListByTrip: %v", err)
	}
	if len(byTrip) != 1 {
		t.Fatalf("expected one booking on the trip, got %d", len(byTrip))
	}
}
