package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// TicketItem is one overdue entry in an alert email.
type TicketItem struct {
	Subject string
	URL     string
	Meta    string // e.g. "Assigned to Jane, 2 days since last reply"
}

// AlertData feeds both the assigned-ticket and VIP response-time alerts;
// the composing job supplies the variant-specific heading and lead line.
type AlertData struct {
	Heading   string
	Lead      string
	Tickets   []TicketItem
	MoreCount int // remainder beyond the listed entries, 0 when none
}

// MessageData is a VIP message notification ("new message" or "reply").
type MessageData struct {
	Heading         string
	Author          string
	Subject         string
	MessagePreview  string
	ConversationURL string
}

// DailyData is the daily digest email.
type DailyData struct {
	MailboxName string
	Lines       []string
}

// WeeklyMember is one ranked row in the weekly report email.
type WeeklyMember struct {
	Name  string
	Count string
}

// WeeklyData is the weekly report email.
type WeeklyData struct {
	MailboxName     string
	DateRange       string
	ActiveMembers   []WeeklyMember
	InactiveMembers []string
	TotalReplies    string
	ActiveSummary   string // e.g. "from 3 people"
}

const styleHeader = `style="font-size:1.5rem;font-weight:bold;margin-bottom:0.5rem;color:#1a1a1a"`
const styleSub = `style="font-size:0.875rem;color:#6b7280;margin-bottom:1.5rem"`
const styleBox = `style="background:#f8f9fa;padding:20px;border-radius:8px;border:1px solid #e5e7eb;margin-bottom:1.5rem"`
const styleLine = `style="margin:8px 0;font-size:0.9375rem;color:#374151"`

var alertTmpl = template.Must(template.New("alert").Parse(`<html>
<body style="font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',sans-serif;background-color:#ffffff;padding:20px">
<div style="max-width:600px;margin:0 auto">
<p ` + styleHeader + `>{{.Heading}}</p>
<p ` + styleSub + `>{{.Lead}}</p>
<div ` + styleBox + `>
{{range .Tickets}}<p ` + styleLine + `><a href="{{.URL}}" style="color:#2563eb">{{.Subject}}</a> ({{.Meta}})</p>
{{end}}{{if gt .MoreCount 0}}<p ` + styleLine + `>(and {{.MoreCount}} more)</p>
{{end}}</div>
</div>
</body>
</html>
`))

var messageTmpl = template.Must(template.New("message").Parse(`<html>
<body style="font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',sans-serif;background-color:#ffffff;padding:20px">
<div style="max-width:600px;margin:0 auto">
<p ` + styleHeader + `>{{.Heading}}</p>
<p style="font-size:1rem;color:#1a1a1a;margin-bottom:1.5rem"><strong>{{.Author}}</strong> sent a new message:</p>
<div ` + styleBox + `>
<p ` + styleLine + `><strong>{{.Subject}}</strong></p>
<p ` + styleLine + `>{{.MessagePreview}}</p>
</div>
<p ` + styleLine + `><a href="{{.ConversationURL}}" style="color:#2563eb">View conversation</a></p>
</div>
</body>
</html>
`))

var dailyTmpl = template.Must(template.New("daily").Parse(`<html>
<body style="font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',sans-serif;background-color:#ffffff;padding:20px">
<div style="max-width:600px;margin:0 auto">
<p ` + styleHeader + `>Daily summary for {{.MailboxName}}</p>
<p ` + styleSub + `>Here's your daily support metrics overview</p>
<div ` + styleBox + `>
{{range .Lines}}<p ` + styleLine + `>{{.}}</p>
{{end}}</div>
</div>
</body>
</html>
`))

var weeklyTmpl = template.Must(template.New("weekly").Parse(`<html>
<body style="font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',sans-serif;background-color:#ffffff;padding:20px">
<div style="max-width:600px;margin:0 auto">
<p ` + styleHeader + `>Weekly summary for {{.MailboxName}}</p>
<p ` + styleSub + `>{{.DateRange}}</p>
<div ` + styleBox + `>
{{if .ActiveMembers}}<p style="font-size:1rem;font-weight:bold;color:#374151;margin-bottom:12px">Team members:</p>
{{range .ActiveMembers}}<p ` + styleLine + `>{{.Name}}: {{.Count}}</p>
{{end}}{{end}}{{if .InactiveMembers}}<p style="font-size:1rem;font-weight:bold;color:#374151;margin-bottom:12px">No tickets answered:</p>
<p ` + styleLine + `>{{range $i, $m := .InactiveMembers}}{{if $i}}, {{end}}{{$m}}{{end}}</p>
{{end}}</div>
{{if .TotalReplies}}<p ` + styleLine + `><strong>Total replies:</strong> {{.TotalReplies}} {{.ActiveSummary}}</p>
{{end}}</div>
</body>
</html>
`))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func RenderAlert(data AlertData) (string, error)     { return render(alertTmpl, data) }
func RenderMessage(data MessageData) (string, error) { return render(messageTmpl, data) }
func RenderDaily(data DailyData) (string, error)     { return render(dailyTmpl, data) }
func RenderWeekly(data WeeklyData) (string, error)   { return render(weeklyTmpl, data) }
