package main

import (
	"context"
	"time"

	mailgun "github.com/mailgun/mailgun-go/v3"
	"github.com/sirupsen/logrus"
)

// sendMail fires an alert email through Mailgun. Failures are logged and
// swallowed so a mail outage never takes the bridge down.
func sendMail(mc cfgMailgun, subj, msg string) {
	mg := mailgun.NewMailgun(mc.Domain, mc.APIKey)
	message := mg.NewMessage(mc.Sender, subj, msg, mc.Recipients...)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	resp, id, err := mg.Send(ctx, message)
	if err != nil {
		logrus.Errorf("mail: failed to send alert: %s", err)
		return
	}

	if id == "" {
		logrus.Errorf("mail: failed to send alert, invalid ID: %s", resp)
	}
}
