package reconcile

import (
	"context"

	"github.com/couchcryptid/inflation-map/internal/domain"
)

// Surface is the map widget the reconciler drives.
type Surface interface {
	RenderMarkers(ctx context.Context, markers []domain.Marker) error
	SetViewport(ctx context.Context, center domain.Geo, zoom int) error
	SetStatusMessage(ctx context.Context, text string) error
}

// CommandKind names a surface operation.
type CommandKind string

const (
	CommandRenderMarkers CommandKind = "render_markers"
	CommandSetViewport   CommandKind = "set_viewport"
	CommandSetStatus     CommandKind = "set_status"
)

// Command is the serialisable form of one surface call.
type Command struct {
	Kind    CommandKind     `json:"kind"`
	Markers []domain.Marker `json:"markers,omitempty"`
	Center  *domain.Geo     `json:"center,omitempty"`
	Zoom    int             `json:"zoom,omitempty"`
	Message string          `json:"message,omitempty"`
}

// CommandBuffer is a Surface that records calls as commands, for transports
// that forward them elsewhere.
type CommandBuffer struct {
	Commands []Command
}

// RenderMarkers implements Surface.
func (b *CommandBuffer) RenderMarkers(_ context.Context, markers []domain.Marker) error {
	b.Commands = append(b.Commands, Command{Kind: CommandRenderMarkers, Markers: markers})
	return nil
}

// SetViewport implements Surface.
func (b *CommandBuffer) SetViewport(_ context.Context, center domain.Geo, zoom int) error {
	b.Commands = append(b.Commands, Command{Kind: CommandSetViewport, Center: &center, Zoom: zoom})
	return nil
}

// SetStatusMessage implements Surface.
func (b *CommandBuffer) SetStatusMessage(_ context.Context, text string) error {
	b.Commands = append(b.Commands, Command{Kind: CommandSetStatus, Message: text})
	return nil
}
