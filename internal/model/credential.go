package model

import (
	"net"
	"strconv"
)

// ImplicitTLSPort is the registered IMAPS port. Any other port upgrades with
// STARTTLS when the server offers it.
const ImplicitTLSPort = 993

// MailCredential is the read-only mailbox login supplied by the user profile.
type MailCredential struct {
	Host     string
	Port     int
	Username string
	Password string
}

// ImplicitTLS reports whether the session must start with TLS.
func (c MailCredential) ImplicitTLS() bool {
	return c.Port == ImplicitTLSPort
}

// Addr returns host:port.
func (c MailCredential) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
