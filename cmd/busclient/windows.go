package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/bus"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/emitter"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/router"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/types"
)

var windowsSession string

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "Drive the hub's window manager",
}

var windowsOpenCmd = &cobra.Command{
	Use:   "open [addon]",
	Short: "Open a window and print its id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{}
		if len(args) == 1 {
			payload[types.KeyAddon] = args[0]
		}
		reply, err := windowRequest(cmd, types.TopicOpen, types.TopicOpened, payload)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), reply.Get(types.KeyWindowID).String())
		return err
	},
}

var windowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the hub's windows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := types.TopicListAll
		var payload map[string]any
		if windowsSession != "" {
			topic = types.TopicListBySession
			payload = map[string]any{types.KeySessionID: windowsSession}
		}
		reply, err := windowRequest(cmd, topic, types.TopicListed, payload)
		if err != nil {
			return err
		}

		var listed struct {
			Windows []types.Window `json:"windows"`
		}
		if err := reply.DecodePayload(&listed); err != nil {
			return err
		}
		out, err := sonic.MarshalIndent(listed.Windows, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

var windowsStateCmd = &cobra.Command{
	Use:   "state <window-id>",
	Short: "Print the state of a window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := windowRequest(cmd, types.TopicGetState, types.TopicState,
			map[string]any{types.KeyWindowID: args[0]})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), reply.Get(types.KeyState).Raw)
		return err
	},
}

// lifecycleCmd builds a subcommand for a command topic that takes only a
// window id.
func lifecycleCmd(name, topic, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <window-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm := types.TopicClosed
			if topic != types.TopicClose {
				confirm = types.LifecycleReplies[topic]
			}
			_, err := windowRequest(cmd, topic, confirm, map[string]any{types.KeyWindowID: args[0]})
			return err
		},
	}
}

var windowsMoveCmd = &cobra.Command{
	Use:   "move <window-id> <x> <y>",
	Short: "Move a window",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, y, err := pair(args[1], args[2])
		if err != nil {
			return err
		}
		_, err = windowRequest(cmd, types.TopicMove, types.TopicMoved, map[string]any{
			types.KeyWindowID: args[0],
			types.KeyPosition: types.WindowPosition{X: x, Y: y},
		})
		return err
	},
}

var windowsResizeCmd = &cobra.Command{
	Use:   "resize <window-id> <width> <height>",
	Short: "Resize a window",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, h, err := pair(args[1], args[2])
		if err != nil {
			return err
		}
		_, err = windowRequest(cmd, types.TopicResize, types.TopicResized, map[string]any{
			types.KeyWindowID: args[0],
			types.KeySize:     types.WindowSize{Width: w, Height: h},
		})
		return err
	},
}

func init() {
	windowsListCmd.Flags().StringVar(&windowsSession, "of-session", "", "Only windows of this session")

	windowsCmd.AddCommand(
		windowsOpenCmd,
		windowsListCmd,
		windowsStateCmd,
		windowsMoveCmd,
		windowsResizeCmd,
		lifecycleCmd("close", types.TopicClose, "Close a window"),
		lifecycleCmd("minimize", types.TopicMinimize, "Minimize a window"),
		lifecycleCmd("maximize", types.TopicMaximize, "Maximize a window"),
		lifecycleCmd("restore", types.TopicRestore, "Restore a window"),
		lifecycleCmd("hide", types.TopicHide, "Hide a window"),
		lifecycleCmd("show", types.TopicShow, "Show a hidden window"),
	)
}

// windowRequest sends a command and waits for its confirmation. An
// operation_failed answer to the same command ends the wait with its error.
func windowRequest(cmd *cobra.Command, topic, confirm string, payload map[string]any) (*envelope.Envelope, error) {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	b, _, err := connect(ctx)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// Failures arrive on their own topic, so they are watched separately
	// and matched on the command's window.
	target, _ := payload[types.KeyWindowID].(string)
	unsubscribe := b.On(types.TopicOperationFailed, router.Func(func(e *envelope.Envelope) error {
		if e.Get(types.KeyWindowID).String() == target {
			cancel(fmt.Errorf("%s failed: %s", e.Get(types.KeyOperation).String(), e.Get(types.KeyError).String()))
		}
		return nil
	}))
	defer unsubscribe()

	opts := emitter.Options{}
	if payload != nil {
		opts.Payload = payload
	}
	reply, err := b.Request(ctx, topic, opts, bus.RequestOptions{ResponseTopic: confirm})
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && cause != ctx.Err() {
			return nil, cause
		}
		return nil, err
	}
	return reply, nil
}

func pair(a, b string) (int, int, error) {
	x, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", a)
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", b)
	}
	return x, y, nil
}
