package utils

import (
	"fmt"
	"log"
	"net/smtp"

	"dancebattlez/config"
	"dancebattlez/models"
)

// Mailer sends lifecycle notifications over SMTP. Delivery is best
// effort: failures are logged, never surfaced to the caller.
type Mailer struct {
	cfg *config.Config
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) send(to, subject, body string) error {
	smtpCfg := m.cfg.SMTP
	auth := smtp.PlainAuth("", smtpCfg.Username, smtpCfg.Password, smtpCfg.Host)
	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s <%s>\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=\"UTF-8\"\r\n"+
			"\r\n"+
			"%s\r\n",
		to, smtpCfg.SenderName, smtpCfg.SenderEmail, subject, body))

	addr := fmt.Sprintf("%s:%d", smtpCfg.Host, smtpCfg.Port)
	return smtp.SendMail(addr, auth, smtpCfg.SenderEmail, []string{to}, msg)
}

// CalloutSubmitted notifies the admin inbox that a callout needs review.
func (m *Mailer) CalloutSubmitted(match *models.Match) {
	body := fmt.Sprintf(
		"<p>A-Camp: %s</p><p>B-Camp: %s</p><p>Match ID: %s</p><p>Rules: %s</p>",
		match.AUsername, match.BUsername, match.MatchID, match.Rules)
	if err := m.send(m.cfg.SMTP.AdminEmail, "Callout pending verification", body); err != nil {
		log.Printf("Failed to send callout notification for %s: %v", match.MatchID, err)
	}
}

// ReplySubmitted notifies the admin inbox that a response needs review.
func (m *Mailer) ReplySubmitted(match *models.Match) {
	body := fmt.Sprintf(
		"<p>B-Camp: %s</p><p>Match ID: %s</p><p>Reply: %s</p>",
		match.BUsername, match.MatchID, match.ResponderReply)
	if err := m.send(m.cfg.SMTP.AdminEmail, "Response pending verification", body); err != nil {
		log.Printf("Failed to send reply notification for %s: %v", match.MatchID, err)
	}
}

// MatchFinalized announces the outcome to the admin inbox.
func (m *Mailer) MatchFinalized(match *models.Match) {
	body := fmt.Sprintf(
		"<p>Match ID: %s</p><p>%s vs %s</p><p>Outcome: %s</p><p>Totals: %d / %d</p>",
		match.MatchID, match.AUsername, match.BUsername, match.Outcome, match.ATotal, match.BTotal)
	if err := m.send(m.cfg.SMTP.AdminEmail, "Battle finalized", body); err != nil {
		log.Printf("Failed to send finalized notification for %s: %v", match.MatchID, err)
	}
}
