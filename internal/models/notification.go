package models

// Notification channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// EmailAttachment is a base64 encoded file attached to an email
type EmailAttachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	Type        string `json:"type"`
	Disposition string `json:"disposition,omitempty"`
}

// EmailParams is the provider-neutral email payload
type EmailParams struct {
	From        string            `json:"from"`
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	HTML        string            `json:"html"`
	Text        string            `json:"text,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Categories  []string          `json:"categories,omitempty"`
	Attachments []EmailAttachment `json:"attachments,omitempty"`
}

// SMSParams is the provider-neutral SMS payload
type SMSParams struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// NotificationMessage is the queued unit of work
type NotificationMessage struct {
	RequestID string       `json:"request_id"`
	Channel   string       `json:"channel"`
	Email     *EmailParams `json:"email,omitempty"`
	SMS       *SMSParams   `json:"sms,omitempty"`
}
