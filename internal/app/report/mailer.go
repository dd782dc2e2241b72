package report

import (
	"io"

	"gopkg.in/gomail.v2"
)

// SMTPConfig 報表寄送的 SMTP 設定
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// Mailer 以 SMTP 寄送帶附件的報表信
type Mailer struct {
	cfg SMTPConfig
}

func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send 寄出報表，content 以附件夾帶
func (m *Mailer) Send(subject, filename string, content []byte) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", "Please find attached the daily transaction report.")
	msg.Attach(filename, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	}))

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Password)
	return dialer.DialAndSend(msg)
}

var _ Sender = (*Mailer)(nil)
