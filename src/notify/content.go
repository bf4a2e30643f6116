// Package notify delivers invitation and reminder emails.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"membershare/src/services"
)

// Content is a rendered email.
type Content struct {
	Subject string
	HTML    string
}

// ContentBuilder renders invitation and reminder emails. Replace it to
// customize subjects or bodies.
type ContentBuilder interface {
	Invitation(msg services.InvitationMessage) (Content, error)
	Reminder(msg services.InvitationMessage) (Content, error)
}

// TemplateBuilder is the default html/template ContentBuilder.
type TemplateBuilder struct {
	SiteName   string
	GroupLabel string
	invitation *template.Template
	reminder   *template.Template
}

const invitationTemplate = `<p>Hello,</p>
<p>{{.Owner}} has invited you to join their {{.Label}} "{{.GroupName}}" on {{.Site}}.</p>
<p><a href="{{.AcceptURL}}">Accept or decline the invitation</a></p>
<p>This invitation expires on {{.Expires}}.</p>`

const reminderTemplate = `<p>Hello,</p>
<p>This is a reminder that {{.Owner}} invited you to join their {{.Label}} "{{.GroupName}}" on {{.Site}}.</p>
<p><a href="{{.AcceptURL}}">Respond to the invitation</a> before {{.Expires}}.</p>`

func NewTemplateBuilder(siteName, groupLabel string) *TemplateBuilder {
	return &TemplateBuilder{
		SiteName:   siteName,
		GroupLabel: groupLabel,
		invitation: template.Must(template.New("invitation").Parse(invitationTemplate)),
		reminder:   template.Must(template.New("reminder").Parse(reminderTemplate)),
	}
}

type templateData struct {
	Owner     string
	Label     string
	GroupName string
	Site      string
	AcceptURL template.URL
	Expires   string
}

func (b *TemplateBuilder) data(msg services.InvitationMessage) templateData {
	owner := msg.OwnerName
	if owner == "" {
		owner = "A member"
	}
	return templateData{
		Owner:     owner,
		Label:     b.GroupLabel,
		GroupName: msg.GroupName,
		Site:      b.SiteName,
		AcceptURL: template.URL(msg.AcceptURL),
		Expires:   time.Unix(msg.ExpiresAt, 0).UTC().Format("January 2, 2006"),
	}
}

func (b *TemplateBuilder) Invitation(msg services.InvitationMessage) (Content, error) {
	d := b.data(msg)
	html, err := render(b.invitation, d)
	if err != nil {
		return Content{}, err
	}
	return Content{
		Subject: fmt.Sprintf("You're invited to join %s's %s on %s", d.Owner, b.GroupLabel, b.SiteName),
		HTML:    html,
	}, nil
}

func (b *TemplateBuilder) Reminder(msg services.InvitationMessage) (Content, error) {
	d := b.data(msg)
	html, err := render(b.reminder, d)
	if err != nil {
		return Content{}, err
	}
	return Content{
		Subject: fmt.Sprintf("Reminder: Your invitation to join %s's %s expires soon", d.Owner, b.GroupLabel),
		HTML:    html,
	}, nil
}

func render(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}
