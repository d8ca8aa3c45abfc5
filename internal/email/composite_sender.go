package email

import (
	"context"
	"fmt"
	"strings"
)

// CompositeSender fans one message out to several senders, e.g. SES delivery
// plus a file audit log. Every sender is attempted even when an earlier one
// fails.
type CompositeSender struct {
	senders []Sender
}

// NewCompositeSender creates a CompositeSender.
func NewCompositeSender(senders ...Sender) *CompositeSender {
	return &CompositeSender{senders: senders}
}

// AddSender appends a sender; nil senders are ignored.
func (cs *CompositeSender) AddSender(sender Sender) {
	if sender != nil {
		cs.senders = append(cs.senders, sender)
	}
}

// Send delivers through every registered sender and reports all failures as
// one combined error.
func (cs *CompositeSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if len(cs.senders) == 0 {
		return fmt.Errorf("no senders configured in CompositeSender")
	}

	var allErrors []string
	for _, sender := range cs.senders {
		if err := sender.Send(ctx, to, subject, rawMessage); err != nil {
			allErrors = append(allErrors, err.Error())
		}
	}

	if len(allErrors) > 0 {
		return fmt.Errorf("composite email send failed: [ %s ]", strings.Join(allErrors, "; "))
	}
	return nil
}
