package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/dispatcher"
	"github.com/bakkerme/posterdigest/internal/outputs/email/mock"
)

var fixedDate = time.Date(2026, time.October, 5, 9, 0, 0, 0, time.UTC)

func testMailer(t *testing.T, sender *mock.Sender, prefix string) *Mailer {
	t.Helper()
	m, err := NewMailer(sender, Options{From: "digest@example.com", To: "me@example.com", SubjectPrefix: prefix})
	if err != nil {
		t.Fatalf("NewMailer() error = %v", err)
	}
	m.now = func() time.Time { return fixedDate }
	return m
}

func TestSubject(t *testing.T) {
	cases := []struct {
		name                string
		count, index, total int
		prefix              string
		want                string
	}{
		{name: "single", count: 3, index: 1, total: 1, want: "[3] • IMP Update October 5, 2026"},
		{name: "multi", count: 2, index: 2, total: 4, want: "[2] • IMP Update October 5, 2026 (2 of 4)"},
		{name: "prefix", count: 1, index: 1, total: 1, prefix: " [TEST] ", want: "[TEST] [1] • IMP Update October 5, 2026"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Subject(tc.count, tc.index, tc.total, fixedDate, tc.prefix); got != tc.want {
				t.Fatalf("Subject() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDeliverRendersPostersWithInlineThumbnails(t *testing.T) {
	sender := &mock.Sender{}
	m := testMailer(t, sender, "")
	batch := dispatcher.Batch{Index: 1, Total: 2, Artifacts: []core.Artifact{
		{
			ItemID: "https://www.impawards.com/2024/wicked_ver3.html", Title: "Wicked", Year: "2024",
			PosterNumber: "3", Class: core.ResolutionXXLG, Dimensions: "2025x3000",
			URL: "https://www.impawards.com/2024/posters/wicked_ver3_xxlg.jpg", Thumbnail: []byte{0xff, 0xd8},
		},
		{ItemID: "b", Title: "No <Thumb>", Year: "2025", URL: "https://www.impawards.com/2025/posters/b.jpg", Dimensions: "10x10"},
	}}

	if err := m.Deliver(context.Background(), batch); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(sender.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.Messages))
	}
	msg := sender.Messages[0]
	if msg.Subject != "[2] • IMP Update October 5, 2026 (1 of 2)" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{
		"Wicked (2024)</h3>",
		`<img src="cid:poster0" alt="Wicked">`,
		`href="https://www.impawards.com/2024/posters/wicked_ver3_xxlg.jpg"`,
		"Click image to view full size (2025x3000)",
		"Poster #3",
		"No &lt;Thumb&gt; (2025)",
		"This is an automated email from posterdigest",
	} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.Body)
		}
	}
	if strings.Contains(msg.Body, "cid:poster1") {
		t.Fatalf("artifact without thumbnail must not reference an inline image")
	}
	if len(msg.Inline) != 1 || msg.Inline[0].ContentID != "poster0" || msg.Inline[0].ContentType != "image/jpeg" {
		t.Fatalf("unexpected inline attachments %+v", msg.Inline)
	}
	if !strings.Contains(msg.TextBody, "Poster #3") {
		t.Fatalf("text body should carry the markdown, got %q", msg.TextBody)
	}
}

func TestDeliverPropagatesSenderErrors(t *testing.T) {
	sender := &mock.Sender{Err: errors.New("smtp down")}
	m := testMailer(t, sender, "")
	err := m.Deliver(context.Background(), dispatcher.Batch{Index: 1, Total: 1, Artifacts: []core.Artifact{{ItemID: "a", Title: "A"}}})
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("expected sender error, got %v", err)
	}
}

func TestComposeRejectsEmptyBatch(t *testing.T) {
	m := testMailer(t, &mock.Sender{}, "")
	if _, err := m.Compose(dispatcher.Batch{Index: 1, Total: 1}); err == nil {
		t.Fatalf("expected empty batch to fail")
	}
}

func TestNewMailerRequiresRecipient(t *testing.T) {
	if _, err := NewMailer(&mock.Sender{}, Options{}); err == nil {
		t.Fatalf("expected missing recipient to fail")
	}
}
