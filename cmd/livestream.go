package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"eufy-bridge/internal/hub"
	"eufy-bridge/pkg/models"
)

var (
	streamSerial  string
	streamTimeout time.Duration
)

var livestreamCmd = &cobra.Command{
	Use:   "livestream",
	Short: "Start or stop a camera livestream by hand",
}

var livestreamStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Request a livestream from a camera",
	Run: func(cmd *cobra.Command, args []string) {
		sendStreamCommand(models.StartLivestream(streamSerial))
	},
}

var livestreamStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a camera livestream",
	Run: func(cmd *cobra.Command, args []string) {
		sendStreamCommand(models.StopLivestream(streamSerial))
	},
}

// sendStreamCommand sends one request and waits for its result frame.
func sendStreamCommand(command models.Command) {
	cfg := mustSettings()
	ctx, cancel := context.WithTimeout(context.Background(), streamTimeout)
	defer cancel()

	sess, err := hub.Dial(ctx, cfg.Hub.URL)
	if err != nil {
		fmt.Printf("Error connecting to hub: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()
	context.AfterFunc(ctx, func() { _ = sess.Close() })

	if err := sess.Send(models.SetAPISchema(cfg.Hub.SchemaVersion)); err != nil {
		fmt.Printf("Error setting schema: %v\n", err)
		os.Exit(1)
	}
	command.MessageID = uuid.NewString()
	if err := sess.Send(command); err != nil {
		fmt.Printf("Error sending %s: %v\n", command.Command, err)
		os.Exit(1)
	}

	for {
		raw, err := sess.Read()
		if err != nil {
			fmt.Printf("Error: no result for %s: %v\n", command.Command, err)
			os.Exit(1)
		}
		var env models.Envelope
		if json.Unmarshal(raw, &env) != nil || env.Type != "result" || env.MessageID != command.MessageID {
			continue
		}

		if jsonOutput {
			fmt.Println(string(raw))
			return
		}
		if env.Success != nil && !*env.Success {
			fmt.Printf("Hub rejected %s for %s: %s\n", command.Command, streamSerial, env.ErrorCode)
			os.Exit(1)
		}
		fmt.Printf("%s accepted for %s.\n", command.Command, streamSerial)
		return
	}
}

func init() {
	rootCmd.AddCommand(livestreamCmd)
	livestreamCmd.AddCommand(livestreamStartCmd)
	livestreamCmd.AddCommand(livestreamStopCmd)

	livestreamCmd.PersistentFlags().StringVar(&streamSerial, "serial", "", "Camera serial number (required)")
	livestreamCmd.PersistentFlags().DurationVar(&streamTimeout, "timeout", 10*time.Second, "How long to wait for the hub")
	livestreamCmd.MarkPersistentFlagRequired("serial")
}
