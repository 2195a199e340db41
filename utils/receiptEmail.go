package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/gomail.v2"
)

// ReceiptMailer sends payment receipts over SMTP.
type ReceiptMailer struct{}

func NewReceiptMailer() *ReceiptMailer {
	return &ReceiptMailer{}
}

// SendPaymentReceipt emails a short receipt for a completed submission. Total
// is in minor currency units.
func (m *ReceiptMailer) SendPaymentReceipt(toEmail, patientName string, total int64, methods []string) error {
	fromEmail := os.Getenv("SMTP_USER")

	msg := gomail.NewMessage()
	msg.SetHeader("From", fromEmail)
	msg.SetHeader("To", toEmail)
	msg.SetHeader("Subject", "Payment Receipt")

	body := fmt.Sprintf(
		"Dear %s,\n\nWe received your payment of %d.%02d (%s).\n\nThank you,\nPearl Dental",
		patientName, total/100, total%100, strings.Join(methods, ", "),
	)
	msg.SetBody("text/plain", body)

	dialer, err := smtpDialer()
	if err != nil {
		return err
	}
	return dialer.DialAndSend(msg)
}

func smtpDialer() (*gomail.Dialer, error) {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil, fmt.Errorf("missing SMTP_HOST environment variable")
	}
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	user := os.Getenv("SMTP_USER")
	password := os.Getenv("SMTP_PASSWORD")

	return gomail.NewDialer(host, port, user, password), nil
}
