package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	pushbridge "github.com/slush-dev/push-bridge"
	"github.com/slush-dev/push-bridge/apps/go-cli/internal/app"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Launch the bridge and print push lifecycle events (Ctrl+C to stop)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		showTaps, _ := cmd.Flags().GetBool("broadcasts")

		printer := &eventPrinter{w: os.Stdout, asYAML: useYAML}
		session, err := app.New(cfg,
			app.WithLogger(newLogger()),
			app.WithSink(printer),
		)
		if err != nil {
			return err
		}

		session.FCM.OnConnected(func() {
			fmt.Fprintln(os.Stderr, "MCS connected.")
		})
		session.FCM.OnDisconnected(func() {
			fmt.Fprintln(os.Stderr, "MCS disconnected.")
		})
		if session.Hub != nil {
			session.Hub.OnOpen(func() {
				fmt.Fprintln(os.Stderr, "Hub connected.")
			})
			session.Hub.OnClose(func() {
				fmt.Fprintln(os.Stderr, "Hub disconnected.")
			})
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if showTaps {
			sub := session.Center.Subscribe(pushbridge.DidReceiveRemoteNotification, 0)
			defer sub.Cancel()
			go printer.printBroadcasts(ctx, sub.C)
		}

		if _, err := session.Launch(); err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "Listening for notifications (Ctrl+C to stop) ...")
		err = session.Listen(ctx)
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "\nShutting down ...")
			return nil
		}
		return err
	},
}

func init() {
	addConfigFlags(listenCmd.Flags())
	listenCmd.Flags().Bool("broadcasts", false, "Also print didReceiveRemoteNotification broadcasts")
	rootCmd.AddCommand(listenCmd)
}
