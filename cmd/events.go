package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"eufy-bridge/internal/events"
	"eufy-bridge/internal/hub"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the hub event stream",
}

// tailedEvent is the JSON shape printed by events tail.
type tailedEvent struct {
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	Wire   string    `json:"event"`
	Source string    `json:"source,omitempty"`
	Serial string    `json:"serialNumber,omitempty"`
	State  bool      `json:"state,omitempty"`
	Bytes  int       `json:"bytes,omitempty"`
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print hub events until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustSettings()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sess, err := hub.Dial(ctx, cfg.Hub.URL)
		if err != nil {
			fmt.Printf("Error connecting to hub: %v\n", err)
			os.Exit(1)
		}
		defer sess.Close()
		context.AfterFunc(ctx, func() { _ = sess.Close() })

		if err := sess.Handshake(cfg.Hub.SchemaVersion); err != nil {
			fmt.Printf("Error during handshake: %v\n", err)
			os.Exit(1)
		}

		var emit func(events.Event)
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			emit = func(ev events.Event) {
				_ = enc.Encode(tailedEvent{
					Time: time.Now(), Kind: ev.Kind.String(), Wire: ev.Wire,
					Source: ev.Source, Serial: ev.Serial, State: ev.State, Bytes: len(ev.Payload),
				})
			}
		} else {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TIME\tKIND\tSERIAL\tDETAIL")
			fmt.Fprintln(w, "----\t----\t------\t------")
			w.Flush()
			emit = func(ev events.Event) {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", time.Now().Format("15:04:05"), ev.Kind, ev.Serial, detail(ev))
				w.Flush()
			}
		}

		router := events.NewRouter().Fallback(emit)
		for {
			raw, err := sess.Read()
			if err != nil {
				if ctx.Err() == nil && !hub.IsNormalClose(err) {
					fmt.Printf("Error reading from hub: %v\n", err)
					os.Exit(1)
				}
				return
			}
			router.DispatchRaw(raw)
		}
	},
}

func detail(ev events.Event) string {
	switch ev.Kind {
	case events.KindMotionDetected:
		return fmt.Sprintf("state=%t", ev.State)
	case events.KindVideoChunk, events.KindAudioChunk:
		return fmt.Sprintf("%d bytes", len(ev.Payload))
	case events.KindUnknown:
		return ev.Wire
	}
	return ""
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
