package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"eufy-bridge/internal/notify"
	"eufy-bridge/pkg/models"
)

var (
	webhookURL    string
	webhookSerial string
)

// Parent Command
var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Check the recording notification webhook",
}

var webhookTestCmd = &cobra.Command{
	Use:   "test",
	Short: "POST a sample recording.finished notice",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustSettings()
		url := webhookURL
		if url == "" {
			url = cfg.Notify.WebhookURL
		}
		if url == "" {
			fmt.Println("Error: no webhook configured. Set notify.webhook_url or pass --url.")
			os.Exit(1)
		}

		hook, err := notify.NewWebhook(notify.WebhookConfig{URL: url})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		now := time.Now()
		sample := models.Recording{
			Path:      filepath.Join(cfg.Recorder.Dir, fmt.Sprintf("%s_%s.%s", cfg.Recorder.Prefix, now.Format("20060102-150405"), cfg.Recorder.Container)),
			Serial:    webhookSerial,
			StartedAt: now.Add(-cfg.Recorder.MaxDuration),
			EndedAt:   now,
			Reason:    models.EndHardTimeout,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := hook.Notify(ctx, sample); err != nil {
			fmt.Printf("Error delivering notice: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sample notice delivered to %s\n", url)
	},
}

func init() {
	rootCmd.AddCommand(webhookCmd)
	webhookCmd.AddCommand(webhookTestCmd)

	webhookTestCmd.Flags().StringVar(&webhookURL, "url", "", "Webhook URL (defaults to notify.webhook_url)")
	webhookTestCmd.Flags().StringVar(&webhookSerial, "serial", "TEST0000", "Camera serial in the sample")
}
