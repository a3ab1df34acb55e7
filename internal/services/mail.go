package services

import "context"

// Email is an outbound message carrying a document artifact.
type Email struct {
	To             string
	Subject        string
	Message        string
	DocumentNumber string
	AttachmentURL  string
}

// Mailer delivers emails. Delivery itself is outside the billing core.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// MailerFunc is an adapter to allow the use of a plain function as a Mailer.
type MailerFunc func(ctx context.Context, msg Email) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, msg Email) error {
	return f(ctx, msg)
}
