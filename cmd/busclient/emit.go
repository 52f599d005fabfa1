package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/bus"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/emitter"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
)

var (
	emitReplyTo  string
	emitWait     string
	emitTarget   string
	emitProject  string
	emitEntity   string
	emitTask     string
	emitClearCtx bool

	emitCmd = &cobra.Command{
		Use:   "emit <topic> [payload-json]",
		Short: "Emit one envelope",
		Long: `emit sends one envelope and prints its message id. With --wait it sends the
envelope as a request and prints the first reply on the given topic instead.
--target addresses a single window by id instead of the whole session.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runEmit,
	}
)

func init() {
	f := emitCmd.Flags()
	f.StringVar(&emitReplyTo, "reply-to", "", "Message id this envelope answers")
	f.StringVar(&emitWait, "wait", "", "Wait for a reply on this topic")
	f.StringVar(&emitTarget, "target", "", "Deliver to this window only")
	f.StringVar(&emitProject, "project", "", "Context project override")
	f.StringVar(&emitEntity, "entity", "", "Context entity override")
	f.StringVar(&emitTask, "task", "", "Context task override")
	f.BoolVar(&emitClearCtx, "clear-context", false, "Send every context field as null")
}

func runEmit(cmd *cobra.Command, args []string) error {
	topic := args[0]
	if err := envelope.ValidateTopic(topic); err != nil {
		return err
	}

	var opts emitter.Options
	if len(args) == 2 {
		if !gjson.Valid(args[1]) || !gjson.Parse(args[1]).IsObject() {
			return fmt.Errorf("payload must be a JSON object")
		}
		opts.Payload = []byte(args[1])
	}
	if emitReplyTo != "" {
		opts.ReplyTo = &emitReplyTo
	}
	if emitTarget != "" {
		opts.Source = &emitter.SourceOverride{WindowID: &emitTarget}
	}
	opts.Context = contextPatch()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	b, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if emitWait == "" {
		id := b.Emit(topic, opts)
		if id == "" {
			return bus.ErrNotConnected
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), id)
		return err
	}

	reply, err := b.Request(ctx, topic, opts, bus.RequestOptions{ResponseTopic: emitWait})
	if err != nil {
		return err
	}
	return writeEnvelope(cmd, reply)
}

func contextPatch() envelope.ContextPatch {
	patch := envelope.ContextPatch{}
	if emitClearCtx {
		for _, f := range envelope.ContextFields {
			patch[f] = nil
		}
	}
	for field, v := range map[string]string{
		envelope.FieldProject: emitProject,
		envelope.FieldEntity:  emitEntity,
		envelope.FieldTask:    emitTask,
	} {
		if v != "" {
			patch[field] = envelope.Str(v)
		}
	}
	if len(patch) == 0 {
		return nil
	}
	return patch
}

func writeEnvelope(cmd *cobra.Command, e *envelope.Envelope) error {
	data, err := envelope.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
