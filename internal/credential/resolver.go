package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/inboxsync/internal/model"
)

// ErrNoAccount is returned when a user has no configured mailbox.
var ErrNoAccount = errors.New("mail account not configured")

// PasswordKey is the secret store key holding the IMAP password of user.
func PasswordKey(user string) string {
	return "imap-" + user
}

// Resolver maps application users to mailbox credentials using the
// configured accounts, with passwords from a SecretStore when the account
// does not carry one.
type Resolver struct {
	accounts map[string]model.AccountConfig
	secrets  SecretStore
}

// NewResolver creates a Resolver. secrets may be nil when every account
// carries its password.
func NewResolver(accounts []model.AccountConfig, secrets SecretStore) *Resolver {
	byUser := make(map[string]model.AccountConfig, len(accounts))
	for _, a := range accounts {
		byUser[a.User] = a
	}
	return &Resolver{accounts: byUser, secrets: secrets}
}

// Credential resolves the mailbox credential of user.
func (r *Resolver) Credential(
	_ context.Context, user string,
) (model.MailCredential, error) {
	account, ok := r.accounts[user]
	if !ok || strings.TrimSpace(account.Host) == "" {
		return model.MailCredential{}, fmt.Errorf("user %s: %w", user, ErrNoAccount)
	}

	password := account.Password
	if password == "" {
		if r.secrets == nil {
			return model.MailCredential{}, fmt.Errorf(
				"user %s: no password configured: %w", user, ErrNoAccount,
			)
		}
		var err error
		password, err = r.secrets.Get(PasswordKey(user))
		if err != nil {
			return model.MailCredential{}, fmt.Errorf("loading password for %s: %w", user, err)
		}
	}

	port := account.Port
	if port == 0 {
		port = model.ImplicitTLSPort
	}

	return model.MailCredential{
		Host:     strings.TrimSpace(account.Host),
		Port:     port,
		Username: account.Username,
		Password: password,
	}, nil
}
