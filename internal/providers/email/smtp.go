package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/wunderling/tutorledger/internal/config"
	postingdomain "github.com/wunderling/tutorledger/internal/posting/domain"
	"go.uber.org/zap"
)

type SMTPProvider struct {
	cfg config.SMTPConfig
}

func NewSMTP(cfg config.SMTPConfig) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", to[0], subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, p.cfg.From, to, msg)
}

var runSummaryTmpl = template.Must(template.New("run_summary").Parse(`
<h2>Posting run {{.Status}}</h2>
<p>Run {{.RunID}} ({{.Trigger}}) selected {{.SessionsSelected}} sessions and posted {{.SessionsPosted}}.</p>
{{if .Groups}}
<table border="1" cellpadding="4" cellspacing="0">
  <tr><th>Customer</th><th>Sessions</th><th>Invoice</th><th>Outcome</th></tr>
  {{range .Groups}}
  <tr>
    <td>{{.CustomerName}}</td>
    <td>{{len .SessionIDs}}</td>
    <td>{{.InvoiceID}}</td>
    <td>{{if .Posted}}posted{{else}}{{.Error}}{{end}}</td>
  </tr>
  {{end}}
</table>
{{end}}
{{if .Skipped}}
<h3>Skipped</h3>
<ul>
  {{range .Skipped}}<li>{{.StudentName}} ({{.SessionID}}): {{.Reason}}</li>{{end}}
</ul>
{{end}}
`))

// RunNotifier mails the operator a summary after a live run that did not
// complete cleanly. No-op when SMTP or the operator address is not
// configured.
type RunNotifier struct {
	provider *SMTPProvider
	operator string
	enabled  bool
	log      *zap.Logger
}

func NewRunNotifier(cfg config.Config, log *zap.Logger) postingdomain.Notifier {
	smtpCfg := cfg.SMTP
	enabled := strings.TrimSpace(smtpCfg.Host) != "" && strings.TrimSpace(smtpCfg.Operator) != ""

	return &RunNotifier{
		provider: NewSMTP(smtpCfg),
		operator: strings.TrimSpace(smtpCfg.Operator),
		enabled:  enabled,
		log:      log.Named("email.notifier"),
	}
}

func (n *RunNotifier) NotifyRunCompleted(ctx context.Context, result postingdomain.RunResult) error {
	if !n.enabled {
		return nil
	}
	if result.Status == postingdomain.RunStatusCompleted ||
		result.Status == postingdomain.RunStatusNoSelection {
		return nil
	}

	var body bytes.Buffer
	if err := runSummaryTmpl.Execute(&body, result); err != nil {
		return fmt.Errorf("failed to render run summary: %w", err)
	}

	subject := fmt.Sprintf("Posting run %s: %s", result.RunID, result.Status)
	if err := n.provider.Send(ctx, []string{n.operator}, subject, body.String()); err != nil {
		return err
	}

	n.log.Info("run summary sent", zap.String("run_id", result.RunID))
	return nil
}
