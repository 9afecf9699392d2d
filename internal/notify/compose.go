package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/plant-maintenance/internal/models"
)

const layout = `{{define "parts"}}{{if .}}<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Category</th><th>Part</th><th>Quantity</th><th>Unit price</th><th>Cost</th></tr>
{{range .}}<tr><td>{{.Category}}</td><td>{{.PartName}}</td><td>{{.Quantity}}</td><td>{{printf "%.2f" .UnitPrice}}</td><td>{{printf "%.2f" .Cost}}</td></tr>
{{end}}</table>{{else}}<p>No spare parts used</p>{{end}}{{end}}`

var bodies = map[Event]string{
	EventCreated: `<h2>New Maintenance Request {{.Request.TicketCode}}</h2>
<ul>
<li>Machine: {{.MachineName}}</li>
<li>Production Line Status: {{.Request.ProductionLineState}}</li>
<li>Machine Status: {{.Request.MachineState}}</li>
<li>Symptoms: {{.Request.Symptoms}}</li>
<li>Root Cause: {{.Request.RootCause}}</li>
</ul>
<p><a href="{{.Link}}">{{.Link}}</a></p>`,

	EventAssigned: `<h2>Maintenance Request {{.Request.TicketCode}} assigned to you</h2>
<ul>
<li>Priority: {{.Request.Priority}}</li>
<li>Machine: {{.MachineName}}</li>
<li>Symptoms: {{.Request.Symptoms}}</li>
<li>Root Cause: {{.Request.RootCause}}</li>
</ul>
<p><a href="{{.Link}}">{{.Link}}</a></p>`,

	EventStatusChanged: `<h2>Maintenance Request {{.Request.TicketCode}} is now {{.Request.Status}}</h2>
<ul>
<li>Production Line Status: {{.Request.ProductionLineState}}</li>
<li>Machine Status: {{.Request.MachineState}}</li>
</ul>
<p><a href="{{.Link}}">{{.Link}}</a></p>`,

	EventClosed: `<h2>Maintenance Request {{.Request.TicketCode}} Closed</h2>
<h3>Spare Parts Used</h3>
{{template "parts" .Request.SparePartsUsed}}
<ul>
<li>Total Cost: {{printf "%.2f" .TotalCost}}</li>
<li>Machine Downtime: {{.Request.MachineDowntimeMinutes}} minutes</li>
<li>Production Line Downtime: {{.Request.ProductionLineDowntimeMinutes}} minutes</li>
<li>Solution: {{.Request.Solution}}</li>
<li>Recommendations: {{.Request.Recommendations}}</li>
</ul>
<h3>Attachments</h3>
{{if .Request.Attachments}}<ul>{{range .Request.Attachments}}<li>{{.}}</li>{{end}}</ul>{{else}}<p>No attachments provided</p>{{end}}
<p><a href="{{.Link}}">{{.Link}}</a></p>`,

	EventDeleted: `<h2>Maintenance Request {{.Request.TicketCode}} Deleted</h2>
<ul>
<li>Request ID: {{.Request.ID.Hex}}</li>
<li>Machine: {{.MachineName}}</li>
</ul>
<p>{{.Link}}</p>`,
}

var subjects = map[Event]string{
	EventCreated:       "New Maintenance Request",
	EventAssigned:      "Assigned Maintenance Request",
	EventStatusChanged: "Maintenance Request Status Updated",
	EventClosed:        "Maintenance Request Closed",
	EventDeleted:       "Maintenance Request Deleted",
}

type templateData struct {
	Request     *models.MaintenanceRequest
	MachineName string
	Link        string
	TotalCost   float64
}

// Composer renders notifications for lifecycle events.
type Composer struct {
	baseURL   string
	templates map[Event]*template.Template
}

// NewComposer parses the message templates. Links point at
// <baseURL>/maintenance-request/<id>.
func NewComposer(baseURL string) (*Composer, error) {
	c := &Composer{baseURL: baseURL, templates: make(map[Event]*template.Template, len(bodies))}
	for event, body := range bodies {
		t, err := template.New(string(event)).Parse(layout)
		if err != nil {
			return nil, fmt.Errorf("parse layout: %w", err)
		}
		if _, err := t.Parse(body); err != nil {
			return nil, fmt.Errorf("parse %s template: %w", event, err)
		}
		c.templates[event] = t
	}
	return c, nil
}

// Link returns the web link for a request.
func (c *Composer) Link(r *models.MaintenanceRequest) string {
	return fmt.Sprintf("%s/maintenance-request/%s", c.baseURL, r.ID.Hex())
}

// Compose renders the notification for event about r addressed to to.
func (c *Composer) Compose(event Event, to string, r *models.MaintenanceRequest, machineName string, at time.Time) (Notification, error) {
	t, ok := c.templates[event]
	if !ok {
		return Notification{}, fmt.Errorf("unknown event %q", event)
	}
	data := templateData{
		Request:     r,
		MachineName: machineName,
		Link:        c.Link(r),
		TotalCost:   models.TotalCost(r.SparePartsUsed),
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return Notification{}, fmt.Errorf("render %s: %w", event, err)
	}
	return Notification{
		ID:         uuid.NewString(),
		Event:      event,
		RequestID:  r.ID.Hex(),
		TicketCode: r.TicketCode,
		To:         to,
		Subject:    subjects[event],
		Body:       buf.String(),
		Link:       data.Link,
		OccurredAt: at,
	}, nil
}
