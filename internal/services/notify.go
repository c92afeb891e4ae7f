package services

import (
	"fmt"
	"log"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
)

// NotifyService sends SMS notices via Twilio. Everything here is strictly
// best-effort: a failed or disabled notifier never fails the operation that
// triggered it.
type NotifyService struct {
	client *twilio.RestClient
	from   string
	store  storage.Store
}

// NewNotifyService builds the notifier from TWILIO_* environment variables.
// Missing credentials disable sending instead of failing startup.
func NewNotifyService(store storage.Store) *NotifyService {
	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	from := os.Getenv("TWILIO_PHONE_NUMBER")

	if accountSid == "" || authToken == "" || from == "" {
		log.Println("⚠️  Twilio credentials not found - SMS notifications disabled")
		return &NotifyService{store: store}
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	return &NotifyService{client: client, from: from, store: store}
}

// Enabled reports whether a Twilio client is configured.
func (n *NotifyService) Enabled() bool {
	return n != nil && n.client != nil
}

// SendSMS sends one text message via Twilio.
func (n *NotifyService) SendSMS(to, body string) error {
	if !n.Enabled() {
		return nil
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(n.from)
	params.SetTo(to)
	params.SetBody(body)

	resp, err := n.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("❌ Failed to send SMS to %s: %v", to, err)
		return err
	}
	log.Printf("✅ SMS sent! SID: %s", *resp.Sid)
	return nil
}

// NotifyBookingAccepted texts both parties that the booking is confirmed.
func (n *NotifyService) NotifyBookingAccepted(booking *models.Booking) {
	if !n.Enabled() {
		return
	}
	msg := fmt.Sprintf("Booking %s is confirmed. Trip %s, request %s.",
		booking.BookingID, booking.TripID, booking.CustomerRequestID)
	n.sendToUser(booking.DriverID, msg)
	n.sendToUser(booking.CustomerID, msg)
}

// RelayOtpCode texts the handover code to the party it was issued to.
func (n *NotifyService) RelayOtpCode(booking *models.Booking, challenge *models.OtpChallenge, code string) {
	if !n.Enabled() {
		return
	}
	userID := booking.CustomerID
	if challenge.IssuedTo == models.RoleDriver {
		userID = booking.DriverID
	}
	msg := fmt.Sprintf("Your %s code for booking %s is %s. It expires in 10 minutes.",
		challenge.Kind, booking.BookingID, code)
	n.sendToUser(userID, msg)
}

func (n *NotifyService) sendToUser(userID, body string) {
	user, err := n.store.GetUser(userID)
	if err != nil || user.Phone == "" {
		log.Printf("⚠️  No phone on record for %s, skipping SMS", userID)
		return
	}
	_ = n.SendSMS(user.Phone, body)
}
