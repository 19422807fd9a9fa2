package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/model"
	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
)

const (
	ServiceName      = "irrigation.DecisionService"
	decideFullMethod = "/" + ServiceName + "/Decide"
)

// DecisionServer is the server API of irrigation.DecisionService. The field
// id travels as an Int64Value and the report as a Struct mirroring its JSON.
type DecisionServer interface {
	Decide(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error)
}

var DecisionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DecisionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Decide", Handler: decideHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "irrigation/decision.proto",
}

func RegisterDecisionServer(s grpc.ServiceRegistrar, srv DecisionServer) {
	s.RegisterService(&DecisionServiceDesc, srv)
}

func decideHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DecisionServer).Decide(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: decideFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DecisionServer).Decide(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

// GrpcHandler implements DecisionServer on top of a Service.
type GrpcHandler struct {
	svc *Service
	log *logger.Logger
}

func NewGrpcHandler(svc *Service, log *logger.Logger) *GrpcHandler {
	return &GrpcHandler{svc: svc, log: log}
}

func (h *GrpcHandler) Decide(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	fieldID, err := fieldIDFrom(req.GetValue())
	if err != nil {
		return nil, err
	}
	report := h.svc.Decide(ctx, fieldID)
	out, err := reportToStruct(report)
	if err != nil {
		h.log.Error(err, "report encoding failed")
		return nil, err
	}
	return out, nil
}

// fieldIDFrom rejects identifiers the platform int cannot hold.
func fieldIDFrom(v int64) (int, error) {
	if v < math.MinInt || v > math.MaxInt {
		return 0, status.Errorf(codes.InvalidArgument, "field id %d out of range", v)
	}
	return int(v), nil
}

func reportToStruct(r model.DecisionReport) (*structpb.Struct, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("report to struct: %w", err)
	}
	return out, nil
}

func structToReport(s *structpb.Struct) (model.DecisionReport, error) {
	var r model.DecisionReport
	raw, err := protojson.Marshal(s)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("struct to report: %w", err)
	}
	return r, nil
}

// Client calls a remote DecisionService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens a plaintext connection; the caller closes it.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(target, opts...)
}

func (c *Client) Decide(ctx context.Context, fieldID int, opts ...grpc.CallOption) (model.DecisionReport, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, decideFullMethod, wrapperspb.Int64(int64(fieldID)), out, opts...); err != nil {
		return model.DecisionReport{}, err
	}
	return structToReport(out)
}
