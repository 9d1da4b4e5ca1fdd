package appointment

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/slotbook/slotbook/internal/platform/notification"
)

// Notifier accepts outbound email without blocking.
type Notifier interface {
	Enqueue(m notification.Message) bool
}

type mailer struct {
	notifier  Notifier
	templates *notification.TemplateEngine
	clientURL string
	logger    zerolog.Logger
}

func (m *mailer) confirmation(a *Appointment) {
	m.send(notification.TemplateAppointmentConfirmation, a)
}

func (m *mailer) updated(a *Appointment) {
	m.send(notification.TemplateAppointmentUpdated, a)
}

func (m *mailer) cancelled(a *Appointment) {
	m.send(notification.TemplateAppointmentCancelled, a)
}

func (m *mailer) send(templateID string, a *Appointment) {
	if m.notifier == nil {
		return
	}
	subject, body, err := m.templates.Render(templateID, notification.AppointmentEmail{
		AppointmentID:  a.ID.String(),
		ClientName:     a.ClientName,
		OrganizationID: a.OrganizationID.String(),
		DepartmentName: a.DepartmentName,
		Date:           a.Date.Format("Monday, January 2, 2006"),
		StartTime:      a.Timeslot.StartTime,
		EndTime:        a.Timeslot.EndTime,
		Status:         string(a.Status),
		ViewURL:        strings.TrimRight(m.clientURL, "/") + "/appointments/" + a.ID.String(),
	})
	if err != nil {
		m.logger.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("render appointment email")
		return
	}
	m.notifier.Enqueue(notification.Message{
		To:       a.ClientEmail,
		Subject:  subject,
		HTMLBody: body,
		Kind:     templateID,
	})
}
