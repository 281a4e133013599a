// Channel opcodes (spec.md §4.5). A channel handle is just an opaque
// *channel.Channel value flowing through scope like any other value —
// channel_new returns one, and later statements pass it back in via a
// VARIABLE input. channel_new creates it through the Runtime's
// channel.Registry (vm.Machine.Channels), so every channel a run ever
// creates can be closed in one sweep on teardown (spec.md §5/§8), even
// one a workflow itself never got around to closing.
package opcodes

import (
	"context"

	"github.com/lyzr/lexflow/internal/channel"
	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/registry"
	"github.com/lyzr/lexflow/internal/vm"
)

func init() {
	reg := registry.Default()

	mustRegister(reg, registry.Interface{
		Opcode: "channel_new",
		Params: []registry.Param{{Name: "capacity", Type: registry.ParamInt}},
		Return: registry.ParamAny,
		Doc:    "Creates a bounded channel; capacity defaults to the Runtime's configured default channel capacity (0 meaning unbounded) when omitted.",
	}, channelNew)

	mustRegister(reg, registry.Interface{
		Opcode: "channel_send",
		Params: []registry.Param{
			{Name: "channel", Type: registry.ParamAny, Required: true},
			{Name: "value", Type: registry.ParamAny, Required: true},
		},
		Doc: "Sends value on channel, blocking while it is full.",
	}, channelSend)

	mustRegister(reg, registry.Interface{
		Opcode: "channel_receive",
		Params: []registry.Param{{Name: "channel", Type: registry.ParamAny, Required: true}},
		Return: registry.ParamDict,
		Doc:    "Blocks for the next value; returns {\"value\":..., \"ok\": bool}, ok=false once drained and closed.",
	}, channelReceive)

	mustRegister(reg, registry.Interface{
		Opcode: "channel_try_receive",
		Params: []registry.Param{{Name: "channel", Type: registry.ParamAny, Required: true}},
		Return: registry.ParamDict,
		Doc:    "Non-blocking receive; returns {\"value\":..., \"ok\": bool}.",
	}, channelTryReceive)

	mustRegister(reg, registry.Interface{
		Opcode: "channel_close",
		Params: []registry.Param{{Name: "channel", Type: registry.ParamAny, Required: true}},
		Doc:    "Closes channel; further sends fail, pending receives still drain.",
	}, channelClose)
}

func asChannel(v any) (*channel.Channel, error) {
	ch, ok := v.(*channel.Channel)
	if !ok {
		return nil, lexerr.New(lexerr.KindTypeMismatch, component, "expected a channel handle, got %T", v)
	}
	return ch, nil
}

func channelNew(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	var capacity *int
	if v, ok := call.Args["capacity"]; ok {
		if f, ok := toFloat64(v); ok {
			c := int(f)
			capacity = &c
		}
	}
	return m.Channels().New(capacity), nil
}

func channelSend(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	ch, err := asChannel(call.Args["channel"])
	if err != nil {
		return nil, err
	}
	return nil, ch.Send(ctx, call.Args["value"])
}

func channelReceive(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	ch, err := asChannel(call.Args["channel"])
	if err != nil {
		return nil, err
	}
	v, ok, err := ch.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": v, "ok": ok}, nil
}

func channelTryReceive(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	ch, err := asChannel(call.Args["channel"])
	if err != nil {
		return nil, err
	}
	v, ok := ch.TryReceive()
	return map[string]any{"value": v, "ok": ok}, nil
}

func channelClose(ctx context.Context, m vm.Machine, call *vm.Call) (any, error) {
	ch, err := asChannel(call.Args["channel"])
	if err != nil {
		return nil, err
	}
	ch.Close()
	return nil, nil
}
