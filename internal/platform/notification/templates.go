package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"
)

const (
	TemplateAppointmentConfirmation = "appointment-confirmation"
	TemplateAppointmentUpdated      = "appointment-updated"
	TemplateAppointmentCancelled    = "appointment-cancelled"
)

// AppointmentEmail is the data every appointment template renders.
type AppointmentEmail struct {
	AppointmentID  string
	ClientName     string
	OrganizationID string
	DepartmentName string
	Date           string
	StartTime      string
	EndTime        string
	Status         string
	// ViewURL is only rendered by the confirmation template.
	ViewURL string
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

// TemplateEngine holds the parsed HTML templates keyed by id.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]emailTemplate
}

// NewTemplateEngine parses the built-in appointment templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]emailTemplate)}
	e.mustRegister(TemplateAppointmentConfirmation, "Appointment Confirmation", confirmationBody)
	e.mustRegister(TemplateAppointmentUpdated, "Appointment Updated", updatedBody)
	e.mustRegister(TemplateAppointmentCancelled, "Appointment Cancelled", cancelledBody)
	return e
}

// Register parses body and adds or replaces the template under id.
func (e *TemplateEngine) Register(id, subject, body string) error {
	t, err := template.New(id).Parse(layout)
	if err != nil {
		return fmt.Errorf("parse layout for %q: %w", id, err)
	}
	if _, err := t.New("content").Parse(body); err != nil {
		return fmt.Errorf("parse template %q: %w", id, err)
	}
	e.mu.Lock()
	e.templates[id] = emailTemplate{subject: subject, body: t}
	e.mu.Unlock()
	return nil
}

func (e *TemplateEngine) mustRegister(id, subject, body string) {
	if err := e.Register(id, subject, body); err != nil {
		panic(err)
	}
}

// Render executes the template id against data.
func (e *TemplateEngine) Render(id string, data any) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}

	var buf bytes.Buffer
	if err := t.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render template %q: %w", id, err)
	}
	return t.subject, buf.String(), nil
}

// layout wraps each body, which is parsed as the "content" template.
const layout = `<!DOCTYPE html>
<html>
<head>
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
  .container { max-width: 600px; margin: 0 auto; padding: 20px; }
  .header { padding: 20px; text-align: center; }
  .content { padding: 20px; }
  .details { background-color: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0; }
  .footer { margin-top: 30px; font-size: 12px; color: #666; text-align: center; }
</style>
</head>
<body>
<div class="container">
{{template "content" .}}
<div class="footer"><p>Thank you for choosing our service!</p></div>
</div>
</body>
</html>`

const confirmationBody = `<div class="header" style="background-color: #007bff; color: white;"><h2>Appointment Confirmed!</h2></div>
<div class="content">
<p>Dear {{.ClientName}},</p>
<p>Your appointment has been confirmed. Here are the details:</p>
<div class="details">
<p><strong>Organization:</strong> {{.OrganizationID}}</p>
<p><strong>Department:</strong> {{.DepartmentName}}</p>
<p><strong>Date:</strong> {{.Date}}</p>
<p><strong>Time:</strong> {{.StartTime}} - {{.EndTime}}</p>
<p><strong>Status:</strong> {{.Status}}</p>
</div>
<p>You can view and manage your appointment here:</p>
<p><a href="{{.ViewURL}}">View Appointment</a></p>
<p>If you need to cancel or reschedule, please do so at least 24 hours in advance.</p>
</div>`

const updatedBody = `<div class="header" style="background-color: #ffc107; color: #333;"><h2>Appointment Updated</h2></div>
<div class="content">
<p>Dear {{.ClientName}},</p>
<p>Your appointment has been updated. Here are the new details:</p>
<div class="details">
<p><strong>Organization:</strong> {{.OrganizationID}}</p>
<p><strong>Department:</strong> {{.DepartmentName}}</p>
<p><strong>Date:</strong> {{.Date}}</p>
<p><strong>Time:</strong> {{.StartTime}} - {{.EndTime}}</p>
<p><strong>Status:</strong> {{.Status}}</p>
</div>
<p>If you have any questions, please contact the organization directly.</p>
</div>`

const cancelledBody = `<div class="header" style="background-color: #dc3545; color: white;"><h2>Appointment Cancelled</h2></div>
<div class="content">
<p>Dear {{.ClientName}},</p>
<p>Your appointment has been cancelled. Here are the details of the cancelled appointment:</p>
<div class="details">
<p><strong>Organization:</strong> {{.OrganizationID}}</p>
<p><strong>Department:</strong> {{.DepartmentName}}</p>
<p><strong>Date:</strong> {{.Date}}</p>
<p><strong>Time:</strong> {{.StartTime}} - {{.EndTime}}</p>
<p><strong>Status:</strong> {{.Status}}</p>
</div>
<p>If you'd like to book another appointment, please visit our website.</p>
</div>`
