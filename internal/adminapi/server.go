package adminapi

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"

	"github.com/nec-oss/sliceengine/internal/engine"
	"github.com/nec-oss/sliceengine/internal/logx"
	"github.com/nec-oss/sliceengine/internal/slicedb"
)

// Server is the gRPC-facing wrapper around *engine.Engine, playing the
// same role the teacher's AgwServer plays around its Watcher/Registry.
type Server struct {
	eng *engine.Engine
	log *logx.Logger
}

func NewServer(eng *engine.Engine, log *logx.Logger) *Server {
	if log == nil {
		log = logx.Default
	}
	return &Server{eng: eng, log: log}
}

func (s *Server) lookupSlice(ctx context.Context, req *LookupRequest) (*LookupResponse, error) {
	var mac *slicedb.MAC
	if req.MAC != nil {
		hw, err := net.ParseMAC(*req.MAC)
		if err != nil {
			return nil, fmt.Errorf("adminapi: invalid mac %q: %w", *req.MAC, err)
		}
		var m slicedb.MAC
		copy(m[:], hw)
		mac = &m
	}

	number, found := s.eng.LookupSlice(req.DatapathID, req.Port, req.VID, mac)
	return &LookupResponse{SliceNumber: number, Found: found}, nil
}

func (s *Server) listSlices(ctx context.Context, _ *ListSlicesRequest) (*ListSlicesResponse, error) {
	slices := s.eng.Slices()
	out := make([]SliceInfo, 0, len(slices))
	for _, sl := range slices {
		out = append(out, SliceInfo{Number: sl.Number, ID: sl.ID, NMACSliceMaps: sl.NMACSliceMaps})
	}
	return &ListSlicesResponse{Slices: out}, nil
}

func (s *Server) status(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	return &StatusResponse{
		Initialized:          s.eng.Initialized(),
		LastReconcileUnix:    s.eng.LastReconcileMtime().Unix(),
		LooseMACBasedSlicing: s.eng.LooseMACBasedSlicingEnabled(),
		RestrictHostsOnPort:  s.eng.RestrictHostsOnPortEnabled(),
	}, nil
}

// --- hand-built grpc.ServiceDesc, in place of a generated *_grpc.pb.go ---

const ServiceName = "sliceengine.admin.v1.AdminService"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LookupSlice", Handler: lookupSliceHandler},
		{MethodName: "ListSlices", Handler: listSlicesHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sliceengine/adminapi",
}

func lookupSliceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(LookupRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.lookupSlice(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: fmt.Sprintf("/%s/LookupSlice", ServiceName)}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.lookupSlice(ctx, req.(*LookupRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func listSlicesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ListSlicesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.listSlices(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: fmt.Sprintf("/%s/ListSlices", ServiceName)}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.listSlices(ctx, req.(*ListSlicesRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(StatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.status(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: fmt.Sprintf("/%s/Status", ServiceName)}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// Register attaches the admin service to grpcServer. It does not install
// the JSON codec described in codec.go; NewGRPCServer does that.
func Register(grpcServer *grpc.Server, eng *engine.Engine, log *logx.Logger) {
	grpcServer.RegisterService(&serviceDesc, NewServer(eng, log))
}

// NewGRPCServer builds a *grpc.Server with the JSON codec forced and the
// admin service registered, ready for Serve.
func NewGRPCServer(eng *engine.Engine, log *logx.Logger) *grpc.Server {
	srv := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	Register(srv, eng, log)
	return srv
}
