package email

import (
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// fromHeader renders "Name <addr>" when a display name is configured.
func (c Config) fromHeader() string {
	if c.FromName == "" {
		return c.From
	}
	return fmt.Sprintf("%s <%s>", c.FromName, c.From)
}

// IsConfigured reports whether outbound mail can be sent at all. An empty
// host disables mail silently, which is the expected local dev setup.
func (c Config) IsConfigured() bool {
	return c.Host != "" && c.From != ""
}

type Service struct {
	cfg     Config
	baseURL string
	// send is swapped out by tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(cfg Config, baseURL string) *Service {
	return &Service{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		send:    smtp.SendMail,
	}
}

func (s *Service) sendHTML(to, subject, htmlBody string) error {
	if !s.cfg.IsConfigured() {
		return nil
	}

	var msg strings.Builder
	msg.WriteString("From: " + s.cfg.fromHeader() + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func renderTemplate(name, tmpl string, data any) (string, error) {
	t, err := template.New(name).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}
	var out strings.Builder
	if err := t.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return out.String(), nil
}

const questionNotificationTemplate = `
<html>
<body style="font-family: sans-serif; color: #222;">
	<h2>New question for {{.DepartmentName}}</h2>
	<p>Hi {{.RecipientName}},</p>
	<p>A new question was routed to your department on Ask Hub:</p>
	<blockquote style="border-left: 3px solid #ccc; padding-left: 12px;">
		<strong>{{.Title}}</strong>
	</blockquote>
	<p>Asked by {{.AskerName}}.</p>
	<p><a href="{{.QuestionURL}}">Open the question</a> to post an official answer.</p>
	<p>The Ask Hub team</p>
</body>
</html>
`

// SendQuestionNotification tells one department admin about a freshly
// routed question. Callers pass "Anonymous" as the asker name for
// anonymous questions.
func (s *Service) SendQuestionNotification(to, recipientName, departmentName, askerName, title, questionID string) error {
	body, err := renderTemplate("question_notification", questionNotificationTemplate, map[string]string{
		"RecipientName":  recipientName,
		"DepartmentName": departmentName,
		"AskerName":      askerName,
		"Title":          title,
		"QuestionURL":    s.baseURL + "/questions/" + questionID,
	})
	if err != nil {
		return err
	}
	return s.sendHTML(to, "[Ask Hub] New question for "+departmentName, body)
}

const answerNotificationTemplate = `
<html>
<body style="font-family: sans-serif; color: #222;">
	<h2>Your question has an answer</h2>
	<p>Hi {{.RecipientName}},</p>
	<p>{{if .Official}}An official answer{{else}}An answer{{end}} was posted to your question:</p>
	<blockquote style="border-left: 3px solid #ccc; padding-left: 12px;">
		<strong>{{.Title}}</strong>
	</blockquote>
	<p><a href="{{.QuestionURL}}">Read the answer</a> on Ask Hub.</p>
	<p>The Ask Hub team</p>
</body>
</html>
`

// SendAnswerNotification tells a question author their question was
// answered. Callers skip anonymous questions, which have no author on
// record.
func (s *Service) SendAnswerNotification(to, recipientName, title, questionID string, official bool) error {
	body, err := renderTemplate("answer_notification", answerNotificationTemplate, map[string]any{
		"RecipientName": recipientName,
		"Title":         title,
		"Official":      official,
		"QuestionURL":   s.baseURL + "/questions/" + questionID,
	})
	if err != nil {
		return err
	}
	return s.sendHTML(to, "[Ask Hub] Your question has an answer", body)
}
