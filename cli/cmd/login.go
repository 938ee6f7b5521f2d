package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/BDNK1/dossierflow/cli/internal/prompt"
	httpplugin "github.com/BDNK1/dossierflow/plugins/http"
	"github.com/BDNK1/dossierflow/runtime"
	"github.com/spf13/cobra"
)

const loginPath = "/Auth/login"

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the dossier backend",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		session, err := runtime.OpenFileSession(cfg.Session.Path, logger)
		if err != nil {
			return err
		}
		if err := session.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Uitgelogd")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email (prompted when empty)")
}

type loginResponse struct {
	User  runtime.User `json:"user"`
	Token string       `json:"token"`
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	driver := prompt.NewSurveyDriver(cmd.OutOrStdout())

	email := loginEmail
	if email == "" {
		var err error
		email, err = driver.Input(ctx, prompt.InputConfig{Message: "E-mailadres", Validator: required})
		if err != nil {
			return err
		}
	}
	password, err := driver.Password(ctx, prompt.InputConfig{Message: "Wachtwoord", Validator: required})
	if err != nil {
		return err
	}

	session, err := runtime.OpenFileSession(cfg.Session.Path, logger)
	if err != nil {
		return err
	}

	res, err := login(ctx, httpplugin.New(cfg.API, nil, logger), email, password)
	if err != nil {
		return err
	}
	if err := session.Login(res.User, res.Token); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ingelogd als %s\n", res.User.Name)
	return nil
}

// login exchanges credentials for a user and bearer token.
func login(ctx context.Context, resource runtime.Resource, email, password string) (*loginResponse, error) {
	resp, err := resource.Do(ctx, runtime.Request{
		Method:  http.MethodPost,
		Locator: loginPath,
		Body:    map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login failed: %s", strings.TrimSpace(string(resp.Body)))
	}

	var body runtime.Record
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	var res loginResponse
	if err := runtime.DecodeRecord(body, &res); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	if res.Token == "" {
		return nil, errors.New("login failed: no token in response")
	}
	return &res, nil
}

func required(v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New("verplicht veld")
	}
	return nil
}
