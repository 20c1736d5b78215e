// Package notification sends templated transactional email.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Built-in template ids.
const (
	TemplatePasswordReset = "password-reset"
	TemplateWelcome       = "welcome"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable email template.
type Template struct {
	ID      string
	Name    string
	Subject string
	Body    string
}

// TemplateEngine manages templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplatePasswordReset,
			Name:    "Password Reset",
			Subject: "Your password reset token (valid for {{ttl_minutes}} min)",
			Body: "Forgot your password? Submit a PATCH request with your new password and passwordConfirm to: {{reset_url}}.\n" +
				"If you didn't forget your password, please ignore this email!",
		},
		{
			ID:      TemplateWelcome,
			Name:    "Welcome",
			Subject: "Welcome to AI Medicare, {{name}}!",
			Body:    "Hi {{name}}, your {{role}} account is ready. You can now log in to AI Medicare.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Mailer
// ---------------------------------------------------------------------------

// Mailer renders a template and hands the result to an EmailSender.
type Mailer struct {
	sender    EmailSender
	templates *TemplateEngine
}

func NewMailer(sender EmailSender, templates *TemplateEngine) *Mailer {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Mailer{sender: sender, templates: templates}
}

// SendTemplate renders templateID with data and sends it to recipient.
func (m *Mailer) SendTemplate(ctx context.Context, templateID, recipient string, data map[string]string) error {
	if recipient == "" {
		return errors.New("recipient is required")
	}
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return err
	}
	if err := m.sender.SendEmail(ctx, recipient, subject, body); err != nil {
		return fmt.Errorf("send %s email: %w", templateID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Mock Sender (test double)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
