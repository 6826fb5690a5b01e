package email

import (
	"bytes"
	"fmt"
	"net/smtp"
	"text/template"
)

type Links struct {
	ActivationURL string
	RecoveryURL   string
}

type Mail struct {
	address  string
	password string
	host     string
	port     string
	links    Links
}

func New(address string, password string, host string, port string, links Links) *Mail {
	return &Mail{
		address:  address,
		password: password,
		host:     host,
		port:     port,
		links:    links,
	}
}

var activationTmpl = template.Must(template.New("activation").Parse(
	"Welcome!\r\n\r\n" +
		"Activate your account by visiting {{.URL}}?token={{.Token}}\r\n" +
		"The token expires in {{.Timeout}}.\r\n"))

var recoveryTmpl = template.Must(template.New("recovery").Parse(
	"A password reset was requested for your account.\r\n\r\n" +
		"Reset it by visiting {{.URL}}?token={{.Token}}\r\n" +
		"If you did not request this, ignore this message.\r\n"))

func (m *Mail) SendActivation(to string, token string, timeout string) error {
	var body bytes.Buffer
	data := struct{ URL, Token, Timeout string }{m.links.ActivationURL, token, timeout}
	if err := activationTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("rendering activation email: %w", err)
	}
	return m.send(to, "Activate your account", body.String())
}

func (m *Mail) SendRecovery(to string, token string) error {
	var body bytes.Buffer
	data := struct{ URL, Token string }{m.links.RecoveryURL, token}
	if err := recoveryTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("rendering recovery email: %w", err)
	}
	return m.send(to, "Reset your password", body.String())
}

func (m *Mail) SendReceipt(to string, orderID string, total int) error {
	body := fmt.Sprintf("Thanks for your purchase!\r\n\r\nOrder %s was paid in full ($%d).\r\nYour courses are now available in your library.\r\n", orderID, total)
	return m.send(to, "Your order confirmation", body)
}

func (m *Mail) SendRefund(to string, orderID string, total int) error {
	body := fmt.Sprintf("Order %s was refunded for $%d.\r\nAccess to its courses has been revoked.\r\n", orderID, total)
	return m.send(to, "Your refund confirmation", body)
}

func (m *Mail) SendSale(to string, orderID string, total int) error {
	body := fmt.Sprintf("Order %s completed for $%d.\r\n", orderID, total)
	return m.send(to, "New sale", body)
}

func (m *Mail) send(to string, subject string, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.address, to, subject, body)

	auth := smtp.PlainAuth("", m.address, m.password, m.host)
	addr := m.host + ":" + m.port

	if err := smtp.SendMail(addr, auth, m.address, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("sending email to %s: %w", to, err)
	}
	return nil
}
