package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/inboxsync/internal/credential"
	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/theme"
)

// loginForm holds the values bound to the login prompt.
type loginForm struct {
	host     string
	port     string
	username string
	password string
}

func newLoginCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store the IMAP password of an account in the system keyring",
		Long: "Prompts for the IMAP password of --user and stores it in the system keyring.\n" +
			"An account missing from the config file is prompted for and added to it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.load()
			if err != nil {
				return err
			}
			if o.user == "" {
				return fmt.Errorf("--user is required: %w", model.ErrInvalidArgument)
			}

			_, known := a.cfg.Account(o.user)
			form := &loginForm{port: strconv.Itoa(model.ImplicitTLSPort)}
			if err := buildLoginForm(form, !known).Run(); err != nil {
				return fmt.Errorf("reading credentials: %w", err)
			}

			if !known {
				account, err := form.account(o.user)
				if err != nil {
					return err
				}
				a.cfg.Accounts = append(a.cfg.Accounts, account)
				if err := a.cfg.Validate(); err != nil {
					return err
				}
				if err := model.SaveConfig(a.configPath, a.cfg); err != nil {
					return err
				}
				a.logger.Info().Str("user", o.user).Str("config", a.configPath).Msg("account added")
			}

			if err := a.secrets.Set(credential.PasswordKey(o.user), form.password); err != nil {
				return err
			}
			_, err = fmt.Fprintln(o.stdout, theme.SuccessStyle.Render("Password stored for "+o.user))
			return err
		},
	}
}

// buildLoginForm asks for the password, and for the server details when
// withAccount is set.
func buildLoginForm(f *loginForm, withAccount bool) *huh.Form {
	var fields []huh.Field
	if withAccount {
		fields = append(fields,
			huh.NewInput().
				Title("IMAP Host").
				Description("IMAP server hostname").
				Placeholder("imap.example.com").
				Value(&f.host).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Description("993 for implicit TLS, 143 for STARTTLS").
				Placeholder("993").
				Value(&f.port).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Description("IMAP login name, usually the email address").
				Value(&f.username).
				Validate(validateRequired("Username")),
		)
	}
	fields = append(fields,
		huh.NewInput().
			Title("Password").
			Description("Stored in the system keyring").
			EchoMode(huh.EchoModePassword).
			Value(&f.password).
			Validate(validateRequired("Password")),
	)
	return huh.NewForm(huh.NewGroup(fields...))
}

// account converts the prompted values into an account entry for user.
func (f *loginForm) account(user string) (model.AccountConfig, error) {
	if err := validatePort(f.port); err != nil {
		return model.AccountConfig{}, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(f.port))
	if err != nil {
		return model.AccountConfig{}, fmt.Errorf("parsing port: %w", err)
	}
	return model.AccountConfig{
		User:     user,
		Host:     strings.TrimSpace(f.host),
		Port:     port,
		Username: strings.TrimSpace(f.username),
	}, nil
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("port is required")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("port must be a number")
		}
	}
	if n, err := strconv.Atoi(s); err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}
