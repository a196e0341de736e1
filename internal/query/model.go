package query

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Wuchinator/product-analytics/internal/aggregate"
	"github.com/Wuchinator/product-analytics/internal/analytics"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrMalformedRequest = errors.New("malformed snapshot request")

// SnapshotRequest is the wire form of a GetSnapshot call. Absent lists decode
// to nil (service defaults) and explicit empty lists stay empty.
type SnapshotRequest struct {
	ProjectID        string   `json:"project_id"`
	RangeDays        int      `json:"range_days,omitempty"`
	RetentionEvent   string   `json:"retention_event,omitempty"`
	FunnelSteps      []string `json:"funnel_steps"`
	RetentionOffsets []int    `json:"retention_offsets"`
	Stored           bool     `json:"stored,omitempty"`
}

func (r SnapshotRequest) toRequest() (analytics.Request, error) {
	projectID, err := uuid.Parse(r.ProjectID)
	if err != nil {
		return analytics.Request{}, fmt.Errorf("%w: project_id: %v", ErrMalformedRequest, err)
	}
	return analytics.Request{
		ProjectID:        projectID,
		RangeDays:        r.RangeDays,
		RetentionEvent:   r.RetentionEvent,
		FunnelSteps:      r.FunnelSteps,
		RetentionOffsets: r.RetentionOffsets,
	}, nil
}

// decodeRequest converts a Struct through its canonical JSON form, which
// keeps the nil/empty list distinction and rejects fractional integers.
func decodeRequest(in *structpb.Struct) (SnapshotRequest, error) {
	var req SnapshotRequest
	if in == nil {
		return req, fmt.Errorf("%w: empty request", ErrMalformedRequest)
	}

	raw, err := protojson.Marshal(in)
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return req, nil
}

// EncodeRequest is the client side of decodeRequest.
func EncodeRequest(req SnapshotRequest) (*structpb.Struct, error) {
	return toStruct(req)
}

func encodeSnapshot(snap *aggregate.Snapshot) (*structpb.Struct, error) {
	return toStruct(snap)
}

// DecodeSnapshot turns a GetSnapshot response back into a snapshot.
func DecodeSnapshot(out *structpb.Struct) (*aggregate.Snapshot, error) {
	raw, err := protojson.Marshal(out)
	if err != nil {
		return nil, err
	}

	var snap aggregate.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
