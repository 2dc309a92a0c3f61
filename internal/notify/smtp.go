package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/smtp"

	"hirejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// SMTPConfig configures outbound mail.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"fromName"`
}

// SMTPSender sends plain-text invitations over SMTP.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender validates cfg and fills defaults.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.FromName == "" {
		cfg.FromName = "HireJudge"
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send renders data and delivers it to email.
func (s *SMTPSender) Send(ctx context.Context, email string, data TemplateData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body := Render(data)
	msg := buildMessage(s.cfg.FromName, s.cfg.From, email, subject, body)

	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}
	if s.cfg.Port == "465" {
		return s.sendImplicitTLS(addr, auth, email, msg)
	}
	return smtp.SendMail(addr, auth, s.cfg.From, []string{email}, msg)
}

func (s *SMTPSender) sendImplicitTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Quit()
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		return err
	}
	return wc.Close()
}

func buildMessage(fromName, from, to, subject, body string) []byte {
	return []byte("From: \"" + fromName + "\" <" + from + ">\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n" +
		body + "\r\n")
}

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct{}

// Send logs the rendered subject.
func (LogSender) Send(ctx context.Context, email string, data TemplateData) error {
	subject, _ := Render(data)
	logger.Info(ctx, "notification", zap.String("email", email), zap.String("subject", subject),
		zap.Int64("interview_id", data.InterviewID), zap.Time("time_slot_start", data.TimeSlotStart))
	return nil
}
