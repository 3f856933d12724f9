package smtp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bakkerme/posterdigest/internal/outputs/email"
)

func TestIsLocalDevSMTPHost(t *testing.T) {
	cases := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"mailpit", true},
		{"smtp.example.com", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isLocalDevSMTPHost(tc.host); got != tc.want {
			t.Fatalf("isLocalDevSMTPHost(%q)=%v want %v", tc.host, got, tc.want)
		}
	}
}

func TestResolveTLSMode(t *testing.T) {
	cases := []struct {
		mode string
		port int
		want TLSMode
	}{
		{"", 465, TLSModeImplicit},
		{"auto", 587, TLSModeStartTLS},
		{"off", 25, TLSModeDisabled},
		{"smtp_tls", 587, TLSModeImplicit},
	}
	for _, tc := range cases {
		s := NewSender(Config{Host: "smtp.example.com", Port: tc.port, TLSMode: tc.mode})
		got, err := s.resolveTLSMode()
		if err != nil {
			t.Fatalf("resolveTLSMode(%q) error = %v", tc.mode, err)
		}
		if got != tc.want {
			t.Fatalf("resolveTLSMode(%q, %d) = %q, want %q", tc.mode, tc.port, got, tc.want)
		}
	}
	if _, err := NewSender(Config{Host: "h", Port: 25, TLSMode: "bogus"}).resolveTLSMode(); err == nil {
		t.Fatalf("expected invalid mode to fail")
	}
}

func TestBuildMessageEmbedsInlineImages(t *testing.T) {
	m, err := buildMessage(email.Message{
		From:     "digest@example.com",
		To:       "a@example.com, b@example.com",
		Subject:  "[2] • IMP Update October 19, 2026",
		Body:     `<p><img src="cid:poster0"></p>`,
		TextBody: "Wicked (2024)",
		Inline: []email.Inline{
			{ContentID: "poster0", Filename: "poster0.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff, 0xe0}},
			{ContentID: "empty"},
		},
	})
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	raw := strings.ToLower(buf.String())
	for _, want := range []string{"content-id: <poster0>", "text/html", "text/plain", "poster0.jpg"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("rendered message missing %q", want)
		}
	}
	if strings.Contains(raw, "content-id: <empty>") {
		t.Fatalf("inline without data must be skipped")
	}
	if strings.Contains(raw, "content-id: poster0") {
		t.Fatalf("content id must be wrapped in angle brackets")
	}
	if plain, html := strings.Index(raw, "content-type: text/plain"), strings.Index(raw, "content-type: text/html"); plain < 0 || html < 0 || plain > html {
		t.Fatalf("text/plain must precede text/html in the alternative part (plain=%d html=%d)", plain, html)
	}
}

func TestBuildMessageHTMLOnly(t *testing.T) {
	m, err := buildMessage(email.Message{From: "digest@example.com", To: "a@example.com", Body: "<p>hi</p>"})
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	raw := strings.ToLower(buf.String())
	if !strings.Contains(raw, "text/html") || strings.Contains(raw, "text/plain") {
		t.Fatalf("expected a single html body")
	}
}

func TestBuildMessageRejectsBadAddresses(t *testing.T) {
	if _, err := buildMessage(email.Message{From: "not an address", To: "a@example.com"}); err == nil {
		t.Fatalf("expected invalid from to fail")
	}
	if _, err := buildMessage(email.Message{From: "a@example.com", To: ""}); err == nil {
		t.Fatalf("expected empty to to fail")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "ok", config: Config{Host: "smtp.example.com", Port: 587}},
		{name: "missing host", config: Config{Port: 587}, wantErr: true},
		{name: "bad port", config: Config{Host: "h", Port: 70000}, wantErr: true},
		{name: "bad tls mode", config: Config{Host: "h", Port: 25, TLSMode: "maybe"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.config.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
