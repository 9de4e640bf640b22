package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
)

var (
	submitContactURL string
	submitMessage    string
	submitContext    string
	submitSubject    string
)

var submitCmd = &cobra.Command{
	Use:   "submit <url>",
	Short: "Discover the contact form on one site and submit a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		site := model.Site{
			URL:             args[0],
			ContactURL:      submitContactURL,
			Message:         submitMessage,
			BusinessContext: submitContext,
			Subject:         submitSubject,
		}
		if site.Message == "" {
			return eris.New("--message is required")
		}

		env, err := initEngine(ctx, "submit")
		if err != nil {
			return err
		}
		defer env.Close()

		attempt := env.Engine.DiscoverAndSubmit(ctx, site)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(attempt); err != nil {
			return eris.Wrap(err, "submit: encode attempt")
		}
		if !attempt.Succeeded() {
			return eris.Errorf("submit: %s (%s)", attempt.Outcome, attempt.Reason)
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitContactURL, "contact-url", "", "explicit contact page to start from")
	submitCmd.Flags().StringVarP(&submitMessage, "message", "m", "", "message body to send")
	submitCmd.Flags().StringVar(&submitContext, "context", "", "business context for generated field values")
	submitCmd.Flags().StringVar(&submitSubject, "subject", "", "subject or topic, when the form asks for one")
	rootCmd.AddCommand(submitCmd)
}
