package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TemplateData is everything the invitation email renders.
type TemplateData struct {
	InterviewID     int64     `json:"interviewId"`
	CandidateName   string    `json:"candidateName"`
	JobTitle        string    `json:"jobTitle"`
	InterviewType   string    `json:"interviewType"`
	Mode            string    `json:"mode"`
	DurationMinutes int       `json:"durationMinutes"`
	TimeSlotStart   time.Time `json:"timeSlotStart"`
	TimeSlotEnd     time.Time `json:"timeSlotEnd"`
	Notes           string    `json:"notes,omitempty"`
}

// Notification is one queued invitation.
type Notification struct {
	ID    string       `json:"id"`
	Email string       `json:"email"`
	Data  TemplateData `json:"data"`
}

// Queue accepts notifications for asynchronous delivery.
// Enqueue must not block on delivery itself; a batch is handed off in one call.
type Queue interface {
	Enqueue(ctx context.Context, batch ...Notification) error
}

// Sender delivers one rendered notification.
type Sender interface {
	Send(ctx context.Context, email string, data TemplateData) error
}

// Render builds the subject and plain-text body of an invitation.
func Render(data TemplateData) (string, string) {
	title := data.JobTitle
	if title == "" {
		title = "your application"
	}
	subject := fmt.Sprintf("Interview scheduled: %s", title)

	var b strings.Builder
	name := data.CandidateName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "An interview for %s has been scheduled.\n\n", title)
	fmt.Fprintf(&b, "Type: %s\n", data.InterviewType)
	if data.Mode != "" {
		fmt.Fprintf(&b, "Mode: %s\n", data.Mode)
	}
	fmt.Fprintf(&b, "Starts: %s\n", data.TimeSlotStart.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "Ends: %s\n", data.TimeSlotEnd.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "Duration: %d minutes\n", data.DurationMinutes)
	if data.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s\n", data.Notes)
	}
	fmt.Fprintf(&b, "\nInterview reference: %d\n", data.InterviewID)
	b.WriteString("You can start the interview only inside the window above.\n")
	return subject, b.String()
}
