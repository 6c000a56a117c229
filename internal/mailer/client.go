package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// DeliveryError represents a delivery error with type information
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// Client relays messages through a configured SMTP smarthost
type Client struct {
	addr     string
	username string
	password string
	startTLS bool
	hostname string
	timeout  time.Duration
	logger   *slog.Logger
	signer   *DKIMSigner
}

// NewClient creates a new relay client
func NewClient(addr, username, password string, startTLS bool, logger *slog.Logger) *Client {
	hostname := "localhost"
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		hostname = host
	}
	return &Client{
		addr:     addr,
		username: username,
		password: password,
		startTLS: startTLS,
		hostname: hostname,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

// SetDKIMSigner sets the DKIM signer for outgoing messages
func (c *Client) SetDKIMSigner(signer *DKIMSigner) {
	c.signer = signer
}

// Send relays one message to a single recipient
func (c *Client) Send(ctx context.Context, from, to string, data []byte) error {
	messageData := data
	if c.signer != nil {
		signed, err := c.signer.Sign(data)
		if err != nil {
			c.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", c.signer.Domain(),
				"error", err,
			)
		} else {
			messageData = signed
		}
	}

	var client *smtp.Client
	var err error
	if c.startTLS {
		tlsConfig := &tls.Config{
			ServerName: c.hostname,
			MinVersion: tls.VersionTLS12,
		}
		client, err = smtp.DialStartTLS(c.addr, tlsConfig)
	} else {
		client, err = smtp.Dial(c.addr)
	}
	if err != nil {
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("connection failed to %s: %v", c.addr, err),
		}
	}
	defer client.Close()

	if deadline, ok := ctx.Deadline(); ok {
		client.CommandTimeout = time.Until(deadline)
		client.SubmissionTimeout = time.Until(deadline)
	} else {
		client.CommandTimeout = c.timeout
		client.SubmissionTimeout = c.timeout
	}

	if c.username != "" {
		auth := sasl.NewPlainClient("", c.username, c.password)
		if err := client.Auth(auth); err != nil {
			return categorizeError(err, "AUTH")
		}
	}

	if err := client.Mail(from, nil); err != nil {
		return categorizeError(err, "MAIL FROM")
	}
	if err := client.Rcpt(to, nil); err != nil {
		return categorizeError(err, fmt.Sprintf("RCPT TO %s", to))
	}

	wc, err := client.Data()
	if err != nil {
		return categorizeError(err, "DATA")
	}

	if _, err := bytes.NewReader(messageData).WriteTo(wc); err != nil {
		wc.Close()
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("failed to write message data: %v", err),
		}
	}

	if err := wc.Close(); err != nil {
		return categorizeError(err, "DATA close")
	}

	client.Quit()

	c.logger.Info("message relayed",
		"relay", c.addr,
		"from", from,
		"to", to,
	)

	return nil
}

// smtpCodePattern matches SMTP response codes at word boundaries
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError determines if an SMTP error is temporary or permanent
func categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	if smtpErr, ok := err.(*smtp.SMTPError); ok {
		return &DeliveryError{
			Temporary: smtpErr.Temporary(),
			Message:   msg,
		}
	}

	matches := smtpCodePattern.FindStringSubmatch(err.Error())
	if len(matches) > 1 {
		code := matches[1]
		if strings.HasPrefix(code, "5") {
			return &DeliveryError{
				Temporary: false,
				Message:   msg,
			}
		}
		if strings.HasPrefix(code, "4") {
			return &DeliveryError{
				Temporary: true,
				Message:   msg,
			}
		}
	}

	// Assume temporary by default
	return &DeliveryError{
		Temporary: true,
		Message:   msg,
	}
}
