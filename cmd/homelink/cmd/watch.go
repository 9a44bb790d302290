package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tsarna/homelink/pkg/homelink/channel"
	"github.com/tsarna/homelink/pkg/homelink/watch"
	"go.uber.org/zap"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [topic-patterns...]",
	Short: "Print events from the event channel",
	Long: `Connect to the event channel and print every matching event to stdout.

Events are matched by topic, which is the event type, or "type/action" when
the event carries an action. Patterns use MQTT wildcards. If no pattern is
given, every event is printed ("#").

Examples:
  homelink watch
  homelink watch "device/+"
  homelink watch "device/update" --jq '{id, state}'
  homelink watch --keepalive "@every 30s"`,
	RunE: runWatch,
}

var (
	watchJQ        string
	watchKeepalive string
	watchOutput    string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchJQ, "jq", "", "jq query applied to each event payload ($topic, $type and $action are set)")
	watchCmd.Flags().StringVar(&watchKeepalive, "keepalive", "", "cron schedule for keepalive messages; overrides the config file")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "json", "output format (json, yaml)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	filter, err := watch.NewFilter(args, watchJQ)
	if err != nil {
		return err
	}
	format, err := outputFormat(watchOutput)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := &eventPrinter{out: rt.out, filter: filter, format: format, logger: rt.logger}

	exhausted := &exitMonitor{done: make(chan struct{})}
	client, err := rt.channelClient().
		WithFrameObserver(printer.print).
		WithMonitor(exhausted).
		Build()
	if err != nil {
		return err
	}
	defer client.Close()

	spec := rt.cfg.Channel.Keepalive
	if watchKeepalive != "" {
		spec = watchKeepalive
	}
	if spec != "" {
		keepalive, err := watch.NewKeepalive(spec, rt.cfg.Channel.KeepaliveMessage, client, rt.logger)
		if err != nil {
			return err
		}
		keepalive.Start()
		defer keepalive.Stop()
	}

	rt.logger.Info("Watching channel",
		zap.String("url", client.URL()),
		zap.Strings("patterns", args),
		zap.String("jq", watchJQ))

	if err := client.Connect(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		rt.logger.Debug("Signal received, exiting")
		return nil
	case <-exhausted.done:
		return fmt.Errorf("lost connection to %s", client.URL())
	}
}

// eventPrinter writes matching events, one line per jq result in json
// mode or one document per result in yaml mode.
type eventPrinter struct {
	out    io.Writer
	filter *watch.Filter
	format string
	logger *zap.Logger
}

func (p *eventPrinter) print(ev channel.Event) {
	if !p.filter.Matches(ev) {
		return
	}

	results, err := p.filter.Apply(ev)
	if err != nil {
		p.logger.Warn("Failed to filter event", zap.String("topic", watch.Topic(ev)), zap.Error(err))
		return
	}

	topic := watch.Topic(ev)
	for _, v := range results {
		if p.format == formatYAML {
			if err := writeYAML(p.out, map[string]any{"topic": topic, "payload": v}); err != nil {
				p.logger.Warn("Failed to print event", zap.Error(err))
			}
			continue
		}

		data, err := json.Marshal(v)
		if err != nil {
			fmt.Fprintf(p.out, "%s\t<error marshaling JSON: %v>\n", topic, err)
			continue
		}
		fmt.Fprintf(p.out, "%s\t%s\n", topic, data)
	}
}

// exitMonitor ends the watch once the client stops reconnecting.
type exitMonitor struct {
	once sync.Once
	done chan struct{}
}

func (m *exitMonitor) OnConnect(context.Context, *channel.Client) {}

func (m *exitMonitor) OnDisconnect(context.Context, *channel.Client, error) {}

func (m *exitMonitor) OnRetriesExhausted(context.Context, *channel.Client) {
	m.once.Do(func() { close(m.done) })
}
