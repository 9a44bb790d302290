package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message over the event channel",
	Long: `Connect to the event channel, send a single text frame and disconnect.

With --type the message is wrapped in an event envelope and used as its
data; it is parsed as JSON when possible.

Examples:
  homelink send '{"type":"ping"}'
  homelink send --type device --action refresh '{"id":7}'`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

var (
	sendType   string
	sendAction string
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendType, "type", "", "wrap the message in an envelope with this type")
	sendCmd.Flags().StringVar(&sendAction, "action", "", "envelope action (requires --type)")
}

func runSend(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	message, err := envelopeMessage(args[0], sendType, sendAction)
	if err != nil {
		return err
	}

	// A one-shot send does not wait out reconnects.
	client, err := rt.channelClient().WithMaxRetries(0).Build()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Connect(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.Channel.DialTimeout)
	defer cancel()
	if err := client.AwaitConnected(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", client.URL(), err)
	}

	if !client.Send(message) {
		return fmt.Errorf("failed to send message")
	}
	rt.logger.Debug("Message sent", zap.Int("size", len(message)))
	return nil
}

func envelopeMessage(message, typ, action string) (string, error) {
	if typ == "" {
		if action != "" {
			return "", fmt.Errorf("--action requires --type")
		}
		return message, nil
	}

	env := map[string]any{"type": typ}
	if action != "" {
		env["action"] = action
	}

	var data any
	if err := json.Unmarshal([]byte(message), &data); err != nil {
		data = message
	}
	env["data"] = data

	out, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return string(out), nil
}
