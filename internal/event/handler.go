package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName           = "analytics.v1.EventService"
	TrackEventsFullMethod = "/" + ServiceName + "/TrackEvents"
)

// WireEvent is the JSON shape of one event in a TrackEvents request.
type WireEvent struct {
	ID         string          `json:"id,omitempty"`
	ProjectID  string          `json:"project_id"`
	UserID     string          `json:"user_id"`
	EventName  string          `json:"event_name"`
	OccurredAt string          `json:"occurred_at"`
	Properties json.RawMessage `json:"properties,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
}

type trackEventsRequest struct {
	Events []WireEvent `json:"events"`
}

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) TrackEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req trackEventsRequest
	if in != nil {
		raw, err := protojson.Marshal(in)
		if err == nil {
			err = json.Unmarshal(raw, &req)
		}
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "can't decode events: %v", err)
		}
	}

	h.logger.Debug("TrackEvents called", zap.Int("events", len(req.Events)))

	events := make([]*Event, 0, len(req.Events))
	for i, w := range req.Events {
		ev, err := w.toEvent()
		if err != nil {
			h.logger.Warn("Rejected event", zap.Int("index", i), zap.Error(err))
			return nil, status.Errorf(codes.InvalidArgument, "event %d: %v", i, err)
		}
		events = append(events, ev)
	}

	stored, err := h.service.Ingest(ctx, events)
	if err != nil {
		if errors.Is(err, ErrEmptyBatch) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "can't track events: %v", err)
	}

	out, err := structpb.NewStruct(map[string]any{
		"accepted": len(events),
		"stored":   stored,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "can't encode response: %v", err)
	}
	return out, nil
}

func (w WireEvent) toEvent() (*Event, error) {
	id := uuid.New()
	if w.ID != "" {
		parsed, err := uuid.Parse(w.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid id: %w", err)
		}
		id = parsed
	}

	projectID, err := uuid.Parse(w.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProjectID, err)
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, w.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
	}

	ev := &Event{
		ID:         id,
		ProjectID:  projectID,
		UserID:     w.UserID,
		EventName:  w.EventName,
		OccurredAt: occurredAt.UTC(),
		Properties: ParseProperties(w.Properties),
	}
	if w.SessionID != "" {
		ev.InSession(w.SessionID)
	}

	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// ToWire is the client side of TrackEvents decoding.
func ToWire(ev *Event) WireEvent {
	w := WireEvent{
		ID:         ev.ID.String(),
		ProjectID:  ev.ProjectID.String(),
		UserID:     ev.UserID,
		EventName:  ev.EventName,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if !ev.Properties.IsNull() {
		w.Properties, _ = json.Marshal(ev.Properties)
	}
	if id, ok := ev.Session(); ok {
		w.SessionID = id
	}
	return w
}

// EncodeEvents builds a TrackEvents request.
func EncodeEvents(events []*Event) (*structpb.Struct, error) {
	req := trackEventsRequest{Events: make([]WireEvent, len(events))}
	for i, ev := range events {
		req.Events[i] = ToWire(ev)
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventServer is the server API of analytics.v1.EventService.
type EventServer interface {
	TrackEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterEventServer(s grpc.ServiceRegistrar, srv EventServer) {
	s.RegisterService(&EventServiceDesc, srv)
}

var EventServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "TrackEvents",
			Handler:    trackEventsHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func trackEventsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventServer).TrackEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: TrackEventsFullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EventServer).TrackEvents(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls analytics.v1.EventService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) TrackEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TrackEventsFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
