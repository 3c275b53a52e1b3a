package notify

import (
	"fmt"
	"strings"

	"github.com/clinicdesk/scheduling-assistant/internal/clinic"
)

const visitTimeLayout = "Monday, January 2 at 3:04 PM"

func confirmationEmail(d *clinic.AppointmentDetail) EmailMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", d.Patient.FullName())
	b.WriteString("Your appointment has been scheduled:\n\n")
	fmt.Fprintf(&b, "  Doctor: Dr. %s\n", d.Doctor.Name)
	fmt.Fprintf(&b, "  When:   %s\n", d.Slot.StartTime.Format(visitTimeLayout))
	fmt.Fprintf(&b, "  Length: %d minutes\n\n", d.DurationMinutes)
	b.WriteString("Please arrive 15 minutes early. If you need to reschedule or cancel, contact us at least 24 hours in advance.\n")

	return EmailMessage{
		To:      emailOf(d.Patient),
		ToName:  d.Patient.FullName(),
		Subject: "Your appointment confirmation",
		Body:    b.String(),
	}
}

func confirmationSMS(d *clinic.AppointmentDetail) string {
	return fmt.Sprintf("Appointment confirmed with Dr. %s on %s. Reply Y to confirm or call to reschedule.",
		d.Doctor.Name, d.Slot.StartTime.Format(visitTimeLayout))
}

func intakeFormsEmail(d *clinic.AppointmentDetail, forms []clinic.IntakeForm) EmailMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", d.Patient.FullName())
	b.WriteString("Please complete the following intake forms before your visit:\n\n")
	for _, f := range forms {
		fmt.Fprintf(&b, "  - %s\n", strings.ReplaceAll(f.FormType, "_", " "))
	}
	b.WriteString("\nCompleting them ahead of time shortens your check-in.\n")

	return EmailMessage{
		To:      emailOf(d.Patient),
		ToName:  d.Patient.FullName(),
		Subject: "Intake forms for your upcoming visit",
		Body:    b.String(),
	}
}

func reminderEmail(rem clinic.Reminder, d *clinic.AppointmentDetail) EmailMessage {
	when := d.Slot.StartTime.Format(visitTimeLayout)

	var subject string
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", d.Patient.FullName())

	switch rem.Kind {
	case clinic.ReminderFormCheck:
		subject = "Important: appointment forms reminder"
		fmt.Fprintf(&b, "Your appointment with Dr. %s on %s is coming up soon.\n\n", d.Doctor.Name, when)
		b.WriteString("Have you completed your intake forms? If not, please complete them before your appointment to save time.\n")
	default:
		subject = "Upcoming appointment reminder"
		fmt.Fprintf(&b, "This is a reminder about your appointment with Dr. %s on %s.\n\n", d.Doctor.Name, when)
		b.WriteString("Please reply to confirm, or call us to reschedule.\n")
	}

	return EmailMessage{
		To:      emailOf(d.Patient),
		ToName:  d.Patient.FullName(),
		Subject: subject,
		Body:    b.String(),
	}
}

func reminderSMS(rem clinic.Reminder, d *clinic.AppointmentDetail) string {
	when := d.Slot.StartTime.Format(visitTimeLayout)
	if rem.Kind == clinic.ReminderFormCheck {
		return fmt.Sprintf("Reminder: appointment with Dr. %s on %s. Please complete your intake forms.", d.Doctor.Name, when)
	}
	return fmt.Sprintf("Reminder: appointment with Dr. %s on %s. Reply Y to confirm or call to reschedule.", d.Doctor.Name, when)
}

func emailOf(p *clinic.Patient) string {
	if p.Email != nil {
		return *p.Email
	}
	return ""
}

func phoneOf(p *clinic.Patient) string {
	if p.Phone != nil {
		return *p.Phone
	}
	return ""
}
