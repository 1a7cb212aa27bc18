// Package rfc822 renders the canonical email as an RFC 5322 message with
// MIME multipart bodies. It backs the SMTP adapter and the raw-message path
// of providers whose simple APIs cannot carry attachments.
package rfc822

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/sendforge/dispatch/internal/core"
)

// Build renders the email as a complete RFC 5322 message. The messageID, if
// non-empty, is written as the Message-ID header.
func Build(email *core.Email, messageID string, now time.Time) ([]byte, error) {
	buf := &bytes.Buffer{}

	writeHeader(buf, "From", email.From.String())
	writeHeader(buf, "To", joinAddresses(email.To))
	if len(email.CC) > 0 {
		writeHeader(buf, "Cc", joinAddresses(email.CC))
	}
	if !email.ReplyTo.IsZero() {
		writeHeader(buf, "Reply-To", email.ReplyTo.String())
	}
	writeHeader(buf, "Subject", mime.QEncoding.Encode("UTF-8", email.Subject))
	writeHeader(buf, "Date", now.Format(time.RFC1123Z))
	if messageID != "" {
		writeHeader(buf, "Message-ID", "<"+messageID+">")
	}
	for key, value := range email.Headers {
		writeHeader(buf, key, value)
	}
	writeHeader(buf, "MIME-Version", "1.0")

	if email.HasAttachments() {
		return buildMixed(buf, email)
	}

	contentType, content, err := bodyContent(email)
	if err != nil {
		return nil, err
	}
	writeHeader(buf, "Content-Type", contentType)
	if !strings.HasPrefix(contentType, "multipart/") {
		writeHeader(buf, "Content-Transfer-Encoding", "quoted-printable")
	}
	buf.WriteString("\r\n")
	buf.Write(content)

	return buf.Bytes(), nil
}

// buildMixed writes a multipart/mixed body holding the text/HTML parts
// followed by one part per attachment.
func buildMixed(buf *bytes.Buffer, email *core.Email) ([]byte, error) {
	mw := multipart.NewWriter(buf)
	writeHeader(buf, "Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	contentType, content, err := bodyContent(email)
	if err != nil {
		return nil, err
	}

	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", contentType)
	if !strings.HasPrefix(contentType, "multipart/") {
		bodyHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	}
	part, err := mw.CreatePart(bodyHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}

	for _, att := range email.Attachments {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", att.DetectContentType())
		header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
		header.Set("Content-Transfer-Encoding", "base64")

		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, att.Data); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// bodyContent returns the content type and encoded content for the message
// body: a multipart/alternative when both text and HTML are present, a
// single quoted-printable part otherwise.
func bodyContent(email *core.Email) (string, []byte, error) {
	hasText := strings.TrimSpace(email.TextBody) != ""
	hasHTML := strings.TrimSpace(email.HTMLBody) != ""

	if hasText && hasHTML {
		inner := &bytes.Buffer{}
		aw := multipart.NewWriter(inner)

		if err := writeTextPart(aw, "text/plain; charset=UTF-8", email.TextBody); err != nil {
			return "", nil, err
		}
		if err := writeTextPart(aw, "text/html; charset=UTF-8", email.HTMLBody); err != nil {
			return "", nil, err
		}
		if err := aw.Close(); err != nil {
			return "", nil, err
		}
		return "multipart/alternative; boundary=" + aw.Boundary(), inner.Bytes(), nil
	}

	if hasHTML {
		encoded, err := encodeQuotedPrintable(email.HTMLBody)
		if err != nil {
			return "", nil, err
		}
		return "text/html; charset=UTF-8", encoded, nil
	}

	encoded, err := encodeQuotedPrintable(email.TextBody)
	if err != nil {
		return "", nil, err
	}
	return "text/plain; charset=UTF-8", encoded, nil
}

func writeTextPart(mw *multipart.Writer, contentType, body string) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	encoded, err := encodeQuotedPrintable(body)
	if err != nil {
		return err
	}
	_, err = part.Write(encoded)
	return err
}

func encodeQuotedPrintable(s string) ([]byte, error) {
	buf := &bytes.Buffer{}
	qp := quotedprintable.NewWriter(buf)
	if _, err := qp.Write([]byte(s)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBase64 writes data base64-encoded and wrapped at 76 columns.
func writeBase64(w interface{ Write([]byte) (int, error) }, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := 76
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := w.Write([]byte(encoded[:n])); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

func joinAddresses(addrs []core.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}
