package notify

import (
	"context"
	"log"
)

// SMSSender is the outbound SMS transport. The production gateway is an
// external collaborator; this service only ships the simulated sender.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type SimulatedSMSSender struct {
	From string
}

func (s SimulatedSMSSender) SendSMS(ctx context.Context, to, body string) error {
	log.Printf("[simulated sms] from=%s to=%s body=%q", s.From, to, body)
	return nil
}
