package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/router"
)

var listenCmd = &cobra.Command{
	Use:   "listen <topic>...",
	Short: "Print every envelope received on the given topics",
	Long: `listen joins the session and prints each envelope on the given topics as one
JSON line on stdout, until interrupted or the hub goes away.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		b, logger, err := connect(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		out := cmd.OutOrStdout()
		printEnvelope := router.Func(func(e *envelope.Envelope) error {
			data, err := envelope.Marshal(e)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(data))
			return err
		})
		for _, topic := range args {
			if err := envelope.ValidateTopic(topic); err != nil {
				return err
			}
			b.On(topic, printEnvelope)
		}

		id := b.Identity()
		logger.Info("listening",
			zap.Strings("topics", args),
			zap.String("session_id", id.Session),
			zap.String("window_id", id.WindowID))

		select {
		case <-ctx.Done():
			return nil
		case <-b.Disconnected():
			return fmt.Errorf("hub closed the connection")
		}
	},
}
