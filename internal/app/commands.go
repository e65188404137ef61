package app

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/bindings"
	"github.com/petems/overlay-hotkeys/internal/service"
)

// Command names accepted by Bridge.Invoke.
const (
	CmdGetBindings    = "get_hotkey_bindings"
	CmdUpdateBinding  = "update_hotkey_binding"
	CmdPlatformInfo   = "get_hotkey_platform_info"
	CmdApplyHyprland  = "apply_hyprland_hotkey_binding"
	CmdGetStatus      = "get_hotkey_status"
	CmdRemoveHyprland = "remove_hyprland_hotkey_binding"
)

type actionArgs struct {
	Action bindings.Action `json:"action"`
}

type updateArgs struct {
	Action      bindings.Action `json:"action"`
	Accelerator string          `json:"accelerator"`
}

type handler func(ctx context.Context, svc *service.Service, payload []byte) (any, error)

var commands = map[string]handler{
	CmdGetBindings: func(_ context.Context, svc *service.Service, _ []byte) (any, error) {
		return svc.Bindings()
	},
	CmdUpdateBinding: func(_ context.Context, svc *service.Service, payload []byte) (any, error) {
		var args updateArgs
		if err := decodeArgs(payload, &args); err != nil {
			return nil, err
		}
		return nil, svc.UpdateBinding(args.Action, args.Accelerator)
	},
	CmdPlatformInfo: func(_ context.Context, svc *service.Service, _ []byte) (any, error) {
		return svc.PlatformInfo(), nil
	},
	CmdApplyHyprland: func(ctx context.Context, svc *service.Service, payload []byte) (any, error) {
		var args actionArgs
		if err := decodeArgs(payload, &args); err != nil {
			return nil, err
		}
		return svc.ApplyHyprlandBinding(ctx, args.Action)
	},
	CmdGetStatus: func(_ context.Context, svc *service.Service, _ []byte) (any, error) {
		return svc.Status(), nil
	},
	CmdRemoveHyprland: func(ctx context.Context, svc *service.Service, payload []byte) (any, error) {
		var args actionArgs
		if err := decodeArgs(payload, &args); err != nil {
			return nil, err
		}
		return svc.RemoveHyprlandBinding(ctx, args.Action)
	},
}

// Commands lists the accepted command names in sorted order.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bridge exposes the service as named commands taking and returning JSON,
// the shape the UI calls.
type Bridge struct {
	svc *service.Service
}

func NewBridge(svc *service.Service) *Bridge {
	return &Bridge{svc: svc}
}

// Invoke runs command with a JSON payload and returns the JSON result.
// Failures are *apperr.Error values; render them with ErrorJSON.
func (b *Bridge) Invoke(ctx context.Context, command string, payload []byte) ([]byte, error) {
	h, ok := commands[command]
	if !ok {
		return nil, apperr.New(apperr.Internal, "unknown command %q", command)
	}
	result, err := h(ctx, b.svc, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// ErrorJSON renders err as {"kind", "message", "path"}. Errors without a
// kind are reported as Internal.
func ErrorJSON(err error) []byte {
	return apperr.JSON(err)
}

func decodeArgs(payload []byte, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.Internal, err, "invalid command payload")
	}
	return nil
}
