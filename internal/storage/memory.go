package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/utils"
)

// MemoryStore holds all data in memory, for tests and local runs without
// Postgres (USE_MEMORY_STORE=true).
type MemoryStore struct {
	users    map[string]*models.User
	trips    map[string]*models.Trip
	requests map[string]*models.CustomerRequest
	connects map[string]*models.ConnectRequest
	bookings map[string]*models.Booking
	otps     map[string]*models.OtpChallenge
	ledger   []*models.TokenTransaction
	byRef    map[string]*models.TokenTransaction
	settings []*models.RewardSettings
	retries  map[string]*models.RewardRetry

	// One lock for everything: booking transitions cascade across
	// requests, connects and challenges, and must be atomic.
	mu sync.RWMutex

	seq uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*models.User),
		trips:    make(map[string]*models.Trip),
		requests: make(map[string]*models.CustomerRequest),
		connects: make(map[string]*models.ConnectRequest),
		bookings: make(map[string]*models.Booking),
		otps:     make(map[string]*models.OtpChallenge),
		byRef:    make(map[string]*models.TokenTransaction),
		retries:  make(map[string]*models.RewardRetry),
	}
}

// stamp assigns the next row id and creation timestamps. Callers hold mu.
func (m *MemoryStore) stamp() (uint, time.Time) {
	m.seq++
	return m.seq, time.Now()
}

// User operations

func (m *MemoryStore) CreateUser(user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.UserID == "" {
		user.UserID = utils.GenerateSecureID("USR")
	}
	user.Phone = models.NormalizePhone(user.Phone)
	for _, u := range m.users {
		if u.Phone == user.Phone {
			return nil, ErrConflict
		}
	}
	user.ID, user.CreatedAt = m.stamp()
	user.UpdatedAt = user.CreatedAt

	m.users[user.UserID] = user
	cp := *user
	return &cp, nil
}

func (m *MemoryStore) GetUser(userID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[userID]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (m *MemoryStore) GetUserByPhone(phone string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	phone = models.NormalizePhone(phone)
	for _, user := range m.users {
		if user.Phone == phone {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Trip operations

func (m *MemoryStore) CreateTrip(trip *models.Trip) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if trip.TripID == "" {
		trip.TripID = utils.GenerateSecureID("TRP")
	}
	if trip.Status == "" {
		trip.Status = models.TripStatusActive
	}
	trip.ID, trip.CreatedAt = m.stamp()
	trip.UpdatedAt = trip.CreatedAt

	m.trips[trip.TripID] = trip
	cp := *trip
	return &cp, nil
}

func (m *MemoryStore) GetTrip(tripID string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	trip, exists := m.trips[tripID]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *trip
	return &cp, nil
}

// Customer request operations

func (m *MemoryStore) CreateCustomerRequest(req *models.CustomerRequest) (*models.CustomerRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.RequestID == "" {
		req.RequestID = utils.GenerateSecureID("CRQ")
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	req.ID, req.CreatedAt = m.stamp()
	req.UpdatedAt = req.CreatedAt

	m.requests[req.RequestID] = req
	cp := *req
	return &cp, nil
}

func (m *MemoryStore) GetCustomerRequest(requestID string) (*models.CustomerRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, exists := m.requests[requestID]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// Connect request operations

func (m *MemoryStore) CreateConnectRequest(cr *models.ConnectRequest) (*models.ConnectRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cr.ConnectID == "" {
		cr.ConnectID = utils.GenerateSecureID("CON")
	}
	if cr.Status == "" {
		cr.Status = models.ConnectStatusPending
	}
	cr.ID, cr.CreatedAt = m.stamp()
	cr.UpdatedAt = cr.CreatedAt

	m.connects[cr.ConnectID] = cr
	cp := *cr
	return &cp, nil
}

func (m *MemoryStore) GetConnectRequest(connectID string) (*models.ConnectRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cr, exists := m.connects[connectID]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *cr
	return &cp, nil
}

func (m *MemoryStore) AcceptConnectRequest(connectID string) (*models.ConnectRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cr, exists := m.connects[connectID]
	if !exists || !cr.IsActive {
		return nil, ErrNotFound
	}
	if cr.Status != models.ConnectStatusPending && cr.Status != models.ConnectStatusHold {
		return nil, ErrStaleState
	}
	cr.Status = models.ConnectStatusAccepted
	cr.UpdatedAt = time.Now()
	cp := *cr
	return &cp, nil
}

// Booking operations

func (m *MemoryStore) CreateBooking(booking *models.Booking) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Duplicate check lives inside the lock so two concurrent creates for
	// the same pair cannot both slip through.
	if m.activePairExists(booking.TripID, booking.CustomerRequestID) {
		return nil, ErrConflict
	}

	if booking.BookingID == "" {
		booking.BookingID = utils.GenerateSecureID("BK")
	}
	if booking.Status == "" {
		booking.Status = models.BookingStatusPending
	}
	booking.ID, booking.CreatedAt = m.stamp()
	booking.UpdatedAt = booking.CreatedAt

	m.bookings[booking.BookingID] = booking
	cp := *booking
	return &cp, nil
}

func (m *MemoryStore) activePairExists(tripID, requestID string) bool {
	for _, b := range m.bookings {
		if !b.IsActive {
			continue
		}
		if b.TripID != tripID || b.CustomerRequestID != requestID {
			continue
		}
		if b.Status == models.BookingStatusPending || b.Status == models.BookingStatusConfirmed {
			return true
		}
	}
	return false
}

func (m *MemoryStore) GetBooking(bookingID string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	booking, exists := m.bookings[bookingID]
	if !exists || !booking.IsActive {
		return nil, ErrNotFound
	}
	cp := *booking
	return &cp, nil
}

func (m *MemoryStore) GetBookingsByUser(userID string) ([]*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Booking
	for _, b := range m.bookings {
		if b.IsActive && b.IsParticipant(userID) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sortBookings(out)
	return out, nil
}

func (m *MemoryStore) GetBookingsByTrip(tripID string) ([]*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Booking
	for _, b := range m.bookings {
		if b.IsActive && b.TripID == tripID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sortBookings(out)
	return out, nil
}

func sortBookings(bookings []*models.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].ID > bookings[j].ID // newest first
	})
}

func (m *MemoryStore) HasActivePairBooking(tripID, requestID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.activePairExists(tripID, requestID), nil
}

func (m *MemoryStore) ConfirmBookingExclusive(bookingID string, now time.Time) (*models.Booking, *ConfirmationSweep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.bookings[bookingID]
	if !exists || !b.IsActive {
		return nil, nil, ErrNotFound
	}
	if b.Status != models.BookingStatusPending {
		return nil, nil, ErrStaleState
	}
	for _, o := range m.bookings {
		if o.BookingID == b.BookingID || !o.IsActive {
			continue
		}
		if o.Status != models.BookingStatusConfirmed {
			continue
		}
		if o.TripID == b.TripID || o.CustomerRequestID == b.CustomerRequestID {
			return nil, nil, ErrConflict
		}
	}

	acceptedAt := now
	b.Status = models.BookingStatusConfirmed
	b.RecipientAccepted = true
	b.AcceptedAt = &acceptedAt
	b.UpdatedAt = now

	if req, ok := m.requests[b.CustomerRequestID]; ok {
		req.Status = models.RequestStatusBooked
		req.UpdatedAt = now
	}

	sweep := &ConfirmationSweep{}
	for _, o := range m.bookings {
		if o.BookingID == b.BookingID || !o.IsActive || o.Status != models.BookingStatusPending {
			continue
		}
		if o.TripID == b.TripID || o.CustomerRequestID == b.CustomerRequestID {
			rejectedAt := now
			o.Status = models.BookingStatusRejected
			o.RejectedAt = &rejectedAt
			o.UpdatedAt = now
			sweep.RejectedBookingIDs = append(sweep.RejectedBookingIDs, o.BookingID)
		}
	}
	for _, c := range m.connects {
		if !c.IsActive || c.CustomerRequestID != b.CustomerRequestID {
			continue
		}
		if c.Status == models.ConnectStatusPending || c.Status == models.ConnectStatusHold {
			c.Status = models.ConnectStatusRejected
			c.UpdatedAt = now
			sweep.RejectedConnectIDs = append(sweep.RejectedConnectIDs, c.ConnectID)
		}
	}
	sort.Strings(sweep.RejectedBookingIDs)
	sort.Strings(sweep.RejectedConnectIDs)

	cp := *b
	return &cp, sweep, nil
}

func (m *MemoryStore) RejectBooking(bookingID string, now time.Time) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.bookings[bookingID]
	if !exists || !b.IsActive {
		return nil, ErrNotFound
	}
	if b.Status != models.BookingStatusPending {
		return nil, ErrStaleState
	}
	rejectedAt := now
	b.Status = models.BookingStatusRejected
	b.RejectedAt = &rejectedAt
	b.UpdatedAt = now
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) CancelPendingBooking(bookingID, reason, requestedBy string, now time.Time) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.bookings[bookingID]
	if !exists || !b.IsActive {
		return nil, ErrNotFound
	}
	if b.Status != models.BookingStatusPending {
		return nil, ErrStaleState
	}
	cancelledAt := now
	b.Status = models.BookingStatusCancelled
	b.CancelledAt = &cancelledAt
	b.CancellationReason = reason
	b.CancellationRequestedBy = requestedBy
	b.UpdatedAt = now

	if req, ok := m.requests[b.CustomerRequestID]; ok {
		req.Status = models.RequestStatusPending
		req.UpdatedAt = now
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) RequestBookingCancellation(bookingID, reason, requestedBy string, now time.Time) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.bookings[bookingID]
	if !exists || !b.IsActive {
		return nil, ErrNotFound
	}
	if b.Status != models.BookingStatusConfirmed || b.CancellationPending {
		return nil, ErrStaleState
	}
	requestedAt := now
	b.CancellationPending = true
	b.CancellationRequestedBy = requestedBy
	b.CancellationRequestedAt = &requestedAt
	b.CancellationReason = reason
	b.UpdatedAt = now
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) FinalizeBookingCancellation(bookingID, confirmedBy string, now time.Time) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.bookings[bookingID]
	if !exists || !b.IsActive {
		return nil, ErrNotFound
	}
	if b.Status != models.BookingStatusConfirmed || !b.CancellationPending {
		return nil, ErrStaleState
	}
	cancelledAt := now
	b.Status = models.BookingStatusCancelled
	b.CancellationPending = false
	b.CancellationConfirmedBy = confirmedBy
	b.CancelledAt = &cancelledAt
	b.UpdatedAt = now

	if req, ok := m.requests[b.CustomerRequestID]; ok {
		req.Status = models.RequestStatusPending
		req.UpdatedAt = now
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) CompleteBooking(bookingID string, now time.Time) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.bookings[bookingID]
	if !exists || !b.IsActive {
		return nil, ErrNotFound
	}
	if b.Status != models.BookingStatusConfirmed {
		return nil, ErrStaleState
	}
	completedAt := now
	b.Status = models.BookingStatusCompleted
	b.CompletedAt = &completedAt
	b.CancellationPending = false
	b.UpdatedAt = now

	if req, ok := m.requests[b.CustomerRequestID]; ok {
		req.Status = models.RequestStatusCompleted
		req.UpdatedAt = now
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) DeactivateBooking(bookingID, deactivatedBy, note string, now time.Time) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.bookings[bookingID]
	if !exists || !b.IsActive {
		return nil, ErrNotFound
	}
	deactivatedAt := now
	b.IsActive = false
	b.DeactivatedBy = deactivatedBy
	b.DeactivatedAt = &deactivatedAt
	b.DeactivationNote = note
	b.UpdatedAt = now
	cp := *b
	return &cp, nil
}

// OTP challenge operations

func (m *MemoryStore) CreateOtpChallenge(ch *models.OtpChallenge) (*models.OtpChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A fresh code retires any live predecessor for the same handover.
	for _, o := range m.otps {
		if o.BookingID == ch.BookingID && o.Kind == ch.Kind && o.IsActive {
			o.IsActive = false
			o.UpdatedAt = time.Now()
		}
	}

	if ch.OtpID == "" {
		ch.OtpID = uuid.NewString()
	}
	if ch.MaxAttempts == 0 {
		ch.MaxAttempts = models.DefaultOtpMaxAttempts
	}
	ch.ID, ch.CreatedAt = m.stamp()
	ch.UpdatedAt = ch.CreatedAt

	m.otps[ch.OtpID] = ch
	cp := *ch
	return &cp, nil
}

func (m *MemoryStore) GetActiveOtpChallenge(bookingID, kind string) (*models.OtpChallenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.OtpChallenge
	for _, o := range m.otps {
		if o.BookingID != bookingID || o.Kind != kind || !o.IsActive {
			continue
		}
		if latest == nil || o.ID > latest.ID {
			latest = o
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryStore) RegisterOtpAttempt(otpID string) (*models.OtpChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, exists := m.otps[otpID]
	if !exists || !o.IsActive {
		return nil, ErrNotFound
	}
	o.Attempts++
	if o.Attempts >= o.MaxAttempts {
		o.IsActive = false
	}
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) SettlePickup(bookingID, otpID string, now time.Time) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.bookings[bookingID]
	if !exists || !b.IsActive {
		return nil, ErrNotFound
	}
	if b.Status != models.BookingStatusConfirmed || b.AcceptedAt == nil {
		return nil, ErrStaleState
	}
	o, exists := m.otps[otpID]
	if !exists || !o.IsActive || o.Consumed() || o.BookingID != bookingID || o.Kind != models.OtpKindPickup {
		return nil, ErrStaleState
	}

	pickupAt := now
	b.Status = models.BookingStatusPickedUp
	b.PickupAt = &pickupAt
	b.CancellationPending = false
	b.UpdatedAt = now

	consumedAt := now
	o.ConsumedAt = &consumedAt
	o.IsActive = false
	o.UpdatedAt = now

	if req, ok := m.requests[b.CustomerRequestID]; ok {
		req.Status = models.RequestStatusPickedUp
		req.UpdatedAt = now
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) SettleDelivery(bookingID, otpID string, now time.Time) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.bookings[bookingID]
	if !exists || !b.IsActive {
		return nil, ErrNotFound
	}
	if b.Status != models.BookingStatusPickedUp || b.PickupAt == nil {
		return nil, ErrStaleState
	}
	o, exists := m.otps[otpID]
	if !exists || !o.IsActive || o.Consumed() || o.BookingID != bookingID || o.Kind != models.OtpKindDelivery {
		return nil, ErrStaleState
	}

	deliveredAt := now
	b.Status = models.BookingStatusDelivered
	b.DeliveredAt = &deliveredAt
	b.UpdatedAt = now

	consumedAt := now
	o.ConsumedAt = &consumedAt
	o.IsActive = false
	o.UpdatedAt = now

	if req, ok := m.requests[b.CustomerRequestID]; ok {
		req.Status = models.RequestStatusDelivered
		req.UpdatedAt = now
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) DeleteExpiredOtpChallenges(now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, o := range m.otps {
		if !o.Consumed() && o.Expired(now) {
			delete(m.otps, id)
			deleted++
		}
	}
	return deleted, nil
}

// Token ledger operations

func (m *MemoryStore) AppendTokenTransaction(entry *models.TokenTransaction) (*models.TokenTransaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ReferenceKey != "" {
		if existing, ok := m.byRef[entry.ReferenceKey]; ok {
			cp := *existing
			return &cp, false, nil
		}
	}

	if entry.TransactionID == "" {
		entry.TransactionID = uuid.NewString()
	}
	entry.ID, entry.CreatedAt = m.stamp()
	entry.UpdatedAt = entry.CreatedAt

	m.ledger = append(m.ledger, entry)
	if entry.ReferenceKey != "" {
		m.byRef[entry.ReferenceKey] = entry
	}
	cp := *entry
	return &cp, true, nil
}

func (m *MemoryStore) GetTokenBalance(driverID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	balance := 0
	for _, entry := range m.ledger {
		if entry.DriverID == driverID {
			balance += entry.Signed()
		}
	}
	return balance, nil
}

func (m *MemoryStore) GetTokenTransactions(driverID string) ([]*models.TokenTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.TokenTransaction
	for i := len(m.ledger) - 1; i >= 0; i-- { // newest first
		if m.ledger[i].DriverID == driverID {
			cp := *m.ledger[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Reward settings operations

func (m *MemoryStore) CreateRewardSettings(settings *models.RewardSettings) (*models.RewardSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if settings.SettingsID == "" {
		settings.SettingsID = utils.GenerateSecureID("RWS")
	}
	if settings.EffectiveAt.IsZero() {
		settings.EffectiveAt = time.Now()
	}
	for i := range settings.Slabs {
		settings.Slabs[i].SettingsRef = settings.SettingsID
	}
	settings.ID, settings.CreatedAt = m.stamp()
	settings.UpdatedAt = settings.CreatedAt

	m.settings = append(m.settings, settings)
	cp := *settings
	return &cp, nil
}

func (m *MemoryStore) GetActiveRewardSettings(now time.Time) (*models.RewardSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active *models.RewardSettings
	for _, s := range m.settings {
		if !s.IsActive || s.EffectiveAt.After(now) {
			continue
		}
		if active == nil || s.EffectiveAt.After(active.EffectiveAt) ||
			(s.EffectiveAt.Equal(active.EffectiveAt) && s.ID > active.ID) {
			active = s
		}
	}
	if active == nil {
		return nil, ErrNotFound
	}
	cp := *active
	return &cp, nil
}

// Reward retry operations

func (m *MemoryStore) CreateRewardRetry(retry *models.RewardRetry) (*models.RewardRetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if retry.RetryID == "" {
		retry.RetryID = uuid.NewString()
	}
	retry.ID, retry.CreatedAt = m.stamp()
	retry.UpdatedAt = retry.CreatedAt

	m.retries[retry.RetryID] = retry
	cp := *retry
	return &cp, nil
}

func (m *MemoryStore) GetPendingRewardRetries(limit int) ([]*models.RewardRetry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.RewardRetry
	for _, r := range m.retries {
		if r.ResolvedAt == nil {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID }) // oldest first
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateRewardRetry(retry *models.RewardRetry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.retries[retry.RetryID]
	if !exists {
		return ErrNotFound
	}
	r.Attempts = retry.Attempts
	r.LastError = retry.LastError
	r.ResolvedAt = retry.ResolvedAt
	r.UpdatedAt = time.Now()
	return nil
}
