package query

import (
	"context"
	"errors"

	"github.com/Wuchinator/product-analytics/internal/analytics"
	"github.com/Wuchinator/product-analytics/internal/event"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

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

func (h *Handler) GetSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	wire, err := decodeRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	h.logger.Debug("GetSnapshot called",
		zap.String("project_id", wire.ProjectID),
		zap.Int("range_days", wire.RangeDays),
		zap.Bool("stored", wire.Stored),
	)

	req, err := wire.toRequest()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	snap, err := h.service.GetSnapshot(ctx, req, wire.Stored)
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := encodeSnapshot(snap)
	if err != nil {
		h.logger.Error("Failed to encode snapshot", zap.Error(err))
		return nil, status.Errorf(codes.Internal, "failed to encode snapshot: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, event.ErrInvalidProjectID),
		errors.Is(err, analytics.ErrInvalidOffset),
		errors.Is(err, analytics.ErrInvalidFunnelStep):
		return status.Errorf(codes.InvalidArgument, "invalid snapshot request: %v", err)
	case errors.Is(err, analytics.ErrPassTimeout):
		return status.Errorf(codes.DeadlineExceeded, "can't compute snapshot: %v", err)
	case errors.Is(err, analytics.ErrSnapshotNotFound):
		return status.Errorf(codes.NotFound, "can't get snapshot: %v", err)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Errorf(codes.Internal, "can't compute snapshot: %v", err)
	}
}
