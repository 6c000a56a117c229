// Package mailer assembles campaign emails and relays them over SMTP.
package mailer

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope describes one outgoing email before assembly
type Envelope struct {
	From     string
	FromName string
	To       string
	Subject  string
	HTML     string
	Text     string
}

// BuildMessage assembles an RFC 5322 message. HTML-only emails get a
// single text/html part; when a text alternative is present the body is
// multipart/alternative with the HTML part last.
func BuildMessage(env Envelope, now time.Time) []byte {
	var b strings.Builder

	from := env.From
	if env.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", env.FromName), env.From)
	}

	domain := "localhost"
	if at := strings.LastIndex(env.From, "@"); at >= 0 {
		domain = env.From[at+1:]
	}

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", env.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", env.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.New().String(), domain)
	b.WriteString("MIME-Version: 1.0\r\n")

	if env.Text == "" {
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
		b.WriteString("\r\n")
		b.WriteString(normalizeCRLF(env.HTML))
		b.WriteString("\r\n")
		return []byte(b.String())
	}

	boundary := strings.ReplaceAll(uuid.New().String(), "-", "")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(normalizeCRLF(env.Text))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(normalizeCRLF(env.HTML))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}

// normalizeCRLF rewrites bare LF line endings to CRLF
func normalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
