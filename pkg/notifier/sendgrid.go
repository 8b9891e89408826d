// Package notifier delivers templated outbound messages through sendgrid
// dynamic templates. Without an API key it runs in console mode and only
// logs, which keeps local development free of real sends.
package notifier

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/logger"
)

// SendGrid implements domain.Notifier.
type SendGrid struct {
	fromEmail string
	fromName  string
	apiKey    string
	log       logger.Logger
}

// NewSendGrid creates the notifier. An empty API key enables console mode.
func NewSendGrid(fromEmail, fromName, apiKey string, log logger.Logger) *SendGrid {
	if log == nil {
		log = logger.Nop()
	}
	if apiKey == "" {
		log.Warn("notifier in console-only mode, no messages will be delivered")
	}
	return &SendGrid{
		fromEmail: fromEmail,
		fromName:  fromName,
		apiKey:    apiKey,
		log:       log,
	}
}

// Send delivers one templated message. Fire-and-forget per call: the result
// reports acceptance by the provider, not delivery.
func (s *SendGrid) Send(ctx context.Context, destination, templateID string, params map[string]string) domain.SendResult {
	if destination == "" {
		return domain.SendResult{Success: false, Reason: "no destination address"}
	}
	if templateID == "" {
		return domain.SendResult{Success: false, Reason: "no template configured"}
	}

	if s.apiKey == "" {
		s.log.Info("console-mode message", "to", destination, "template_id", templateID)
		return domain.SendResult{Success: true}
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	message.SetTemplateID(templateID)

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", destination))
	for k, v := range params {
		p.SetDynamicTemplateData(k, v)
	}
	message.AddPersonalizations(p)

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		s.log.Error("message send failed", "to", destination, "error", err)
		return domain.SendResult{Success: false, Reason: err.Error()}
	}
	if response.StatusCode >= 400 {
		s.log.Error("message rejected", "to", destination, "status", response.StatusCode)
		return domain.SendResult{Success: false, Reason: fmt.Sprintf("provider returned status %d", response.StatusCode)}
	}
	return domain.SendResult{Success: true}
}
