package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/slush-dev/push-bridge/fcm"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Check in with the push provider and obtain a provider token",
	Long:  "Performs device check-in and provider registration only, useful for debugging push delivery. Nothing is written to disk.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		opts := []fcm.Option{fcm.WithLogger(newLogger()), fcm.WithSenderID(cfg.SenderID)}
		if cfg.AppID != "" {
			opts = append(opts, fcm.WithAppID(cfg.AppID))
		}
		client := fcm.NewClient(opts...)

		fmt.Fprintln(os.Stderr, "Checking in...")
		device, err := client.Checkin(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "Registering with provider...")
		token, err := client.Register(ctx)
		if err != nil {
			return err
		}

		if useYAML {
			yamlOut(map[string]string{
				"device_token":   device.String(),
				"provider_token": token,
			})
		} else {
			fmt.Printf("Device token:   %s\n", device)
			fmt.Printf("Provider token: %s\n", token)
		}
		return nil
	},
}

func init() {
	addConfigFlags(registerCmd.Flags())
	rootCmd.AddCommand(registerCmd)
}
