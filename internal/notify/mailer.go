package notify

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/lalalland/topcoder-x-processor/core/config"
)

// Notifier delivers out-of-band notifications for events the reconciliation
// loop does not act on itself.
type Notifier interface {
	NotifyBid(repoFullName string, issueNumber int, commenter string, amount int) error
}

type smtpNotifier struct {
	cfg config.MailConfig
}

func NewSMTPNotifier(cfg config.MailConfig) Notifier {
	return &smtpNotifier{cfg: cfg}
}

func (n *smtpNotifier) NotifyBid(repoFullName string, issueNumber int, commenter string, amount int) error {
	if !n.cfg.Enabled() {
		slog.Debug("mail notifications disabled, skipping bid notification",
			slog.String("repository", repoFullName),
			slog.Int("issue_number", issueNumber))
		return nil
	}

	subject := fmt.Sprintf("New bid on %s#%d", repoFullName, issueNumber)
	body := fmt.Sprintf("%s placed a bid of $%d on issue %s#%d.",
		commenter, amount, repoFullName, issueNumber)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.Sender)
	fmt.Fprintf(&msg, "To: %s\r\n", n.cfg.Recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := n.cfg.Host + ":" + n.cfg.Port
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, n.cfg.Sender, []string{n.cfg.Recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("sending bid notification: %w", err)
	}
	return nil
}
