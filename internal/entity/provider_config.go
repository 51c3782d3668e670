package entity

// Transport names.
const (
	TransportResend = "resend"
	TransportSMTP   = "smtp"
)

// ProviderConfig is loaded once per invocation and never mutated during it.
type ProviderConfig struct {
	ResendAPIKey string `json:"-"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"`
	SMTPUseTLS   bool   `json:"smtp_use_tls"`

	SenderEmail  string `json:"sender_email"`
	SenderName   string `json:"sender_name"`
	ReplyToEmail string `json:"reply_to_email,omitempty"`

	// AdminNotifyEmail receives owner copies for quizzes that have no
	// notification address of their own.
	AdminNotifyEmail string `json:"admin_notify_email,omitempty"`
}

// Transport names the transport this configuration selects, or "" when
// neither is usable. The API transport wins when both are configured.
func (c ProviderConfig) Transport() string {
	switch {
	case c.ResendAPIKey != "":
		return TransportResend
	case c.SMTPHost != "":
		return TransportSMTP
	default:
		return ""
	}
}

func (c ProviderConfig) Sender() Sender {
	return Sender{Email: c.SenderEmail, Name: c.SenderName, ReplyTo: c.ReplyToEmail}
}

// Merge fills empty fields of c from fallback.
func (c ProviderConfig) Merge(fallback ProviderConfig) ProviderConfig {
	pick := func(v, f string) string {
		if v != "" {
			return v
		}
		return f
	}
	out := c
	out.ResendAPIKey = pick(c.ResendAPIKey, fallback.ResendAPIKey)
	out.SMTPHost = pick(c.SMTPHost, fallback.SMTPHost)
	out.SMTPUsername = pick(c.SMTPUsername, fallback.SMTPUsername)
	out.SMTPPassword = pick(c.SMTPPassword, fallback.SMTPPassword)
	out.SenderEmail = pick(c.SenderEmail, fallback.SenderEmail)
	out.SenderName = pick(c.SenderName, fallback.SenderName)
	out.ReplyToEmail = pick(c.ReplyToEmail, fallback.ReplyToEmail)
	out.AdminNotifyEmail = pick(c.AdminNotifyEmail, fallback.AdminNotifyEmail)
	if out.SMTPPort == 0 {
		out.SMTPPort = fallback.SMTPPort
	}
	if c.SMTPHost == "" {
		out.SMTPUseTLS = fallback.SMTPUseTLS
	}
	return out
}
