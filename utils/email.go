package utils

import (
	"bytes"
	"log"

	"gopkg.in/gomail.v2"

	"payments-service/config"
)

type EmailData struct {
	Subject string
	Text    string
	Email   string
}

func SendEmail(data *EmailData, cfg *config.Config) error {
	var from = cfg.EmailFrom
	var to = data.Email
	var smtpPass = cfg.SMTPPass
	var smtpUser = cfg.SMTPUser
	var smtpHost = cfg.SMTPHost
	var smtpPort = cfg.SMTPPort

	var body bytes.Buffer
	body.WriteString(data.Text)

	m := gomail.NewMessage()

	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", data.Subject)
	m.SetBody("text/plain", body.String())

	d := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPass)

	err := d.DialAndSend(m)
	if err != nil {
		log.Printf("Could not send email: %v", err)
		return err
	}
	return nil
}
