// Package digest renders a batch of artifacts into a digest email and sends
// it through an email.Sender.
package digest

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/dispatcher"
	"github.com/bakkerme/posterdigest/internal/outputs/email"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

const dateLayout = "January 2, 2006"

type Options struct {
	From          string
	To            string
	SubjectPrefix string
}

// Mailer implements dispatcher.Transport.
type Mailer struct {
	sender    email.Sender
	options   Options
	converter goldmark.Markdown
	layout    *template.Template
	now       func() time.Time
}

func NewMailer(sender email.Sender, options Options) (*Mailer, error) {
	if sender == nil {
		return nil, fmt.Errorf("digest: email sender is required")
	}
	if strings.TrimSpace(options.To) == "" {
		return nil, fmt.Errorf("digest: recipient is required")
	}
	layout, err := template.New("digest").Parse(layoutTemplate)
	if err != nil {
		return nil, fmt.Errorf("digest: parse layout: %w", err)
	}
	return &Mailer{
		sender:    sender,
		options:   options,
		converter: newMarkdownConverter(),
		layout:    layout,
		now:       time.Now,
	}, nil
}

func (m *Mailer) Deliver(ctx context.Context, batch dispatcher.Batch) error {
	message, err := m.Compose(batch)
	if err != nil {
		return err
	}
	core.LoggerFromContext(ctx).Info("sending digest",
		"to", message.To,
		"subject", message.Subject,
		"posters", len(batch.Artifacts),
		"bytes", message.Size(),
	)
	return m.sender.Send(ctx, message)
}

// Compose builds the email for one batch without sending it.
func (m *Mailer) Compose(batch dispatcher.Batch) (email.Message, error) {
	if len(batch.Artifacts) == 0 {
		return email.Message{}, fmt.Errorf("digest: batch %d is empty", batch.Index)
	}
	date := m.now()
	markdown := Markdown(batch, date)

	var rendered bytes.Buffer
	if err := m.converter.Convert([]byte(markdown), &rendered); err != nil {
		return email.Message{}, fmt.Errorf("digest: render markdown: %w", err)
	}

	var body strings.Builder
	if err := m.layout.Execute(&body, struct{ Content template.HTML }{
		// Titles are escaped when the markdown is built.
		Content: template.HTML(rendered.String()),
	}); err != nil {
		return email.Message{}, fmt.Errorf("digest: execute layout: %w", err)
	}

	message := email.Message{
		From:     m.options.From,
		To:       m.options.To,
		Subject:  Subject(len(batch.Artifacts), batch.Index, batch.Total, date, m.options.SubjectPrefix),
		Body:     body.String(),
		TextBody: markdown,
	}
	for i, artifact := range batch.Artifacts {
		if len(artifact.Thumbnail) == 0 {
			continue
		}
		message.Inline = append(message.Inline, email.Inline{
			ContentID:   contentID(i),
			Filename:    contentID(i) + ".jpg",
			ContentType: "image/jpeg",
			Data:        artifact.Thumbnail,
		})
	}
	return message, nil
}

// Subject is "[N] • IMP Update <date>", with " (i of n)" for multi-batch
// digests and an optional prefix.
func Subject(count, index, total int, date time.Time, prefix string) string {
	subject := fmt.Sprintf("[%d] • IMP Update %s", count, date.Format(dateLayout))
	if total > 1 {
		subject += fmt.Sprintf(" (%d of %d)", index, total)
	}
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		subject = prefix + " " + subject
	}
	return subject
}

// Markdown is the digest body before HTML rendering. It doubles as the
// plain-text alternative.
func Markdown(batch dispatcher.Batch, date time.Time) string {
	var b strings.Builder
	if batch.Total > 1 {
		fmt.Fprintf(&b, "## IMP Awards Update (%d of %d)\n\n", batch.Index, batch.Total)
	} else {
		b.WriteString("## IMP Awards Update\n\n")
	}
	fmt.Fprintf(&b, "Date: %s  \nPosters in this email: %d\n\n---\n\n", date.Format(dateLayout), len(batch.Artifacts))

	for i, artifact := range batch.Artifacts {
		title := escapeMarkdown(displayTitle(artifact))
		fmt.Fprintf(&b, "### %s (%s)\n\n", title, escapeMarkdown(artifact.Year))
		fmt.Fprintf(&b, "Poster #%s\n\n", escapeMarkdown(posterNumber(artifact)))
		switch {
		case len(artifact.Thumbnail) > 0 && artifact.URL != "":
			fmt.Fprintf(&b, "[![%s](cid:%s)](<%s>)\n\n", title, contentID(i), artifact.URL)
			fmt.Fprintf(&b, "Click image to view full size (%s)\n\n", escapeMarkdown(artifact.Dimensions))
		case len(artifact.Thumbnail) > 0:
			fmt.Fprintf(&b, "![%s](cid:%s)\n\n", title, contentID(i))
		case artifact.URL != "":
			fmt.Fprintf(&b, "[View full size (%s)](<%s>)\n\n", escapeMarkdown(artifact.Dimensions), artifact.URL)
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

func contentID(i int) string {
	return fmt.Sprintf("poster%d", i)
}

func displayTitle(artifact core.Artifact) string {
	if strings.TrimSpace(artifact.Title) == "" {
		return "Unknown"
	}
	return artifact.Title
}

func posterNumber(artifact core.Artifact) string {
	if artifact.PosterNumber == "" {
		return "1"
	}
	return artifact.PosterNumber
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", `*`, `\*`, `_`, `\_`, `[`, `\[`, `]`, `\]`,
	`<`, `&lt;`, `>`, `&gt;`, `#`, `\#`, `!`, `\!`, `|`, `\|`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func newMarkdownConverter() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
}

const layoutTemplate = `<html><body style="font-family: Arial, sans-serif;">
{{.Content}}
<p style="color: #999; font-size: 12px; margin-top: 30px;">This is an automated email from posterdigest</p>
</body></html>
`
