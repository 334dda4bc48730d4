// plan-export talks to the remote plan backend from the command line: it
// downloads plan exports, lists plans and manages the account used to log in.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"lifeplan/internal/cli"
	"lifeplan/internal/log"
	"lifeplan/internal/plans"
	"lifeplan/internal/plans/remote"
	"lifeplan/internal/services"
)

type options struct {
	baseURL  string
	token    string
	email    string
	password string

	planID  string
	format  string
	output  string
	timeout time.Duration

	list          bool
	register      bool
	resetPassword bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cli.LoadEnvFile()

	var o options
	flagSet := pflag.NewFlagSet("plan-export", pflag.ContinueOnError)
	flagSet.StringVar(&o.baseURL, "base-url", os.Getenv("REMOTE_BASE_URL"), "remote backend base URL")
	flagSet.StringVar(&o.token, "token", os.Getenv("REMOTE_TOKEN"), "access token (skips login)")
	flagSet.StringVarP(&o.email, "email", "e", os.Getenv("REMOTE_EMAIL"), "account email")
	flagSet.StringVar(&o.password, "password", os.Getenv("REMOTE_PASSWORD"), "account password")
	flagSet.StringVarP(&o.planID, "plan", "p", "", "id of the plan to export")
	flagSet.StringVarP(&o.format, "format", "f", "pdf", "export format: pdf or csv")
	flagSet.StringVarP(&o.output, "output", "o", "", "output file (default: derived from the plan name)")
	flagSet.DurationVar(&o.timeout, "timeout", time.Minute, "overall request timeout")
	flagSet.BoolVar(&o.list, "list", false, "list the plans of the account and exit")
	flagSet.BoolVar(&o.register, "register", false, "create the account and exit")
	flagSet.BoolVar(&o.resetPassword, "reset-password", false, "request a password reset mail and exit")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: plan-export [flags]\n\nFlags:\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentExport)

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if o.baseURL == "" {
		return errors.New("--base-url or REMOTE_BASE_URL is required")
	}
	var clientOpts []remote.Option
	if o.token != "" {
		clientOpts = append(clientOpts, remote.WithToken(o.token))
	}
	client, err := remote.New(o.baseURL, clientOpts...)
	if err != nil {
		return err
	}
	creds := remote.Credentials{Email: o.email, Password: o.password}

	switch {
	case o.register:
		if o.email == "" || o.password == "" {
			return errors.New("--register needs --email and --password")
		}
		if err := client.Register(ctx, creds); err != nil {
			return err
		}
		logger.Info("Account registered", "email", o.email)
		return nil
	case o.resetPassword:
		if o.email == "" {
			return errors.New("--reset-password needs --email")
		}
		if err := client.RequestPasswordReset(ctx, o.email); err != nil {
			return err
		}
		logger.Info("Password reset requested", "email", o.email)
		return nil
	}

	if o.token == "" {
		if o.email == "" || o.password == "" {
			return errors.New("either --token or --email and --password are required")
		}
		if _, err := client.Login(ctx, creds); err != nil {
			return err
		}
	}

	if o.list {
		return listPlans(ctx, client, os.Stdout)
	}
	return exportPlan(ctx, logger, client, o)
}

func listPlans(ctx context.Context, client *remote.Client, w io.Writer) error {
	list, err := client.ListPlans(ctx)
	if err != nil {
		return err
	}
	for _, p := range list {
		fmt.Fprintf(w, "%s\t%s\tv%d\t%d years\n", p.ID, p.Name, p.Version, p.TermYears)
	}
	return nil
}

func exportPlan(ctx context.Context, logger *log.Logger, client *remote.Client, o options) error {
	if o.planID == "" {
		return errors.New("--plan is required")
	}
	format, err := plans.ParseExportFormat(o.format)
	if err != nil {
		return err
	}

	output := o.output
	if output == "" {
		p, err := client.GetPlan(ctx, o.planID)
		if err != nil {
			return err
		}
		output = services.ExportFileName(p.Name, format)
	}

	body, err := client.ExportPlan(ctx, o.planID, format)
	if err != nil {
		return err
	}
	defer body.Close()

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(output)
		return fmt.Errorf("write export: %w", err)
	}

	logger.Info("Plan exported",
		log.FieldPlanID, o.planID,
		"format", format,
		"path", output,
		"bytes", n)
	return nil
}
