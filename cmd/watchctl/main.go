package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"mailwatch-backend/internal/app"
	maildomain "mailwatch-backend/internal/mail/domain"
	watchdomain "mailwatch-backend/internal/watch/domain"
	"mailwatch-backend/internal/watch/scheduler"
	"mailwatch-backend/internal/watch/usecase"
	"mailwatch-backend/pkg/config"

	"github.com/urfave/cli/v2"
)

// Watcher is the subset of the watch usecase the CLI drives.
type Watcher interface {
	RegisterWatch(ctx context.Context, mailbox string) (*usecase.WatchResult, error)
	GetSubscription(ctx context.Context, mailbox string) (*watchdomain.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*watchdomain.Subscription, error)
}

type Renewer interface {
	RunRenewalPass(ctx context.Context) ([]scheduler.RenewalResult, error)
}

type MailLister interface {
	ListByMailbox(ctx context.Context, mailbox string, limit, offset int) ([]*maildomain.Mail, int64, error)
}

type services struct {
	watch   Watcher
	renewer Renewer
	mails   MailLister
}

func main() {
	var application *app.App

	cliApp := newApp(os.Stdout, func(c *cli.Context) (*services, error) {
		if application == nil {
			a, err := app.New(c.Context, config.Load())
			if err != nil {
				return nil, err
			}
			application = a
		}
		return &services{
			watch:   application.Watch,
			renewer: application.Scheduler,
			mails:   application.Mails,
		}, nil
	})
	cliApp.After = func(*cli.Context) error {
		if application != nil {
			application.Close()
		}
		return nil
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type depsFunc func(c *cli.Context) (*services, error)

func newApp(out io.Writer, deps depsFunc) *cli.App {
	emailFlag := &cli.StringFlag{
		Name:     "email",
		Usage:    "mailbox address",
		Required: true,
	}
	optionalEmailFlag := &cli.StringFlag{
		Name:  "email",
		Usage: "mailbox address; all subscriptions when omitted",
	}

	return &cli.App{
		Name:  "watchctl",
		Usage: "manage Gmail push subscriptions",
		Commands: []*cli.Command{
			{
				Name:   "renew",
				Usage:  "run one renewal pass; exits 1 if any mailbox failed",
				Action: renewAction(out, deps),
			},
			{
				Name:   "register",
				Usage:  "register or refresh the watch for a mailbox",
				Flags:  []cli.Flag{emailFlag},
				Action: registerAction(out, deps),
			},
			{
				Name:   "status",
				Usage:  "print the stored subscription for a mailbox, or list all of them",
				Flags:  []cli.Flag{optionalEmailFlag},
				Action: statusAction(out, deps),
			},
		},
	}
}

func renewAction(out io.Writer, deps depsFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		svc, err := deps(c)
		if err != nil {
			return err
		}

		results, err := svc.renewer.RunRenewalPass(c.Context)
		if err != nil {
			return cli.Exit(fmt.Sprintf("renewal pass failed: %v", err), 1)
		}

		failed := 0
		for _, r := range results {
			if r.Success {
				fmt.Fprintf(out, "ok      %s history=%d expires=%s\n", r.Mailbox, r.HistoryID, r.Expiration.Format(time.RFC3339))
				continue
			}
			failed++
			fmt.Fprintf(out, "failed  %s kind=%s degraded=%t error=%q\n", r.Mailbox, r.ErrorKind, r.Degraded, r.Error)
		}
		fmt.Fprintf(out, "%d renewed, %d failed\n", len(results)-failed, failed)

		if failed > 0 {
			return cli.Exit("", 1)
		}
		return nil
	}
}

func registerAction(out io.Writer, deps depsFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		svc, err := deps(c)
		if err != nil {
			return err
		}

		result, err := svc.watch.RegisterWatch(c.Context, c.String("email"))
		if err != nil {
			return cli.Exit(fmt.Sprintf("%s: %v", watchdomain.ErrorKind(err), err), 1)
		}
		fmt.Fprintf(out, "registered %s history=%d expires=%s stored_history=%d\n",
			result.Mailbox, result.HistoryID, result.Expiration.Format(time.RFC3339), result.Stored.HistoryID)
		return nil
	}
}

func statusAction(out io.Writer, deps depsFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		svc, err := deps(c)
		if err != nil {
			return err
		}

		email := c.String("email")
		if email == "" {
			return listSubscriptions(c.Context, out, svc)
		}

		sub, err := svc.watch.GetSubscription(c.Context, email)
		if err != nil {
			return cli.Exit(fmt.Sprintf("%s: %v", watchdomain.ErrorKind(err), err), 1)
		}
		encoded, err := json.MarshalIndent(sub, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(encoded))

		recent, total, err := svc.mails.ListByMailbox(c.Context, sub.Email, 5, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d mails stored\n", total)
		for _, m := range recent {
			fmt.Fprintf(out, "  %s  %s\n", m.ReceivedAt.Format(time.RFC3339), m.Subject)
		}
		return nil
	}
}

func listSubscriptions(ctx context.Context, out io.Writer, svc *services) error {
	subs, err := svc.watch.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		fmt.Fprintf(out, "%-8s %s history=%d expires=%s failures=%d resync=%t\n",
			sub.Status, sub.Email, sub.HistoryID, sub.Expiration.Format(time.RFC3339), sub.FailureCount, sub.ResyncRequired)
	}
	fmt.Fprintf(out, "%d subscriptions\n", len(subs))
	return nil
}
