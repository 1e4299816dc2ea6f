package api

import (
	"context"
	"math"
	"strings"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	BookingServiceName = "shareit.booking.v1.BookingService"

	methodAddBooking   = "/" + BookingServiceName + "/AddBooking"
	methodGetBooking   = "/" + BookingServiceName + "/GetBooking"
	methodListBookings = "/" + BookingServiceName + "/ListBookings"
	methodSetApproval  = "/" + BookingServiceName + "/SetApproval"
)

// BookingRPCServer is the gRPC surface of the booking engine. Requests and
// responses are google.protobuf.Struct, so there is no generated code.
type BookingRPCServer interface {
	AddBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetApproval(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: BookingServiceName,
	HandlerType: (*BookingRPCServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddBooking", Handler: unaryHandler(methodAddBooking, BookingRPCServer.AddBooking)},
		{MethodName: "GetBooking", Handler: unaryHandler(methodGetBooking, BookingRPCServer.GetBooking)},
		{MethodName: "ListBookings", Handler: unaryHandler(methodListBookings, BookingRPCServer.ListBookings)},
		{MethodName: "SetApproval", Handler: unaryHandler(methodSetApproval, BookingRPCServer.SetApproval)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shareit/booking/v1/booking.proto",
}

// RegisterBookingServer registers srv on s under BookingServiceName.
func RegisterBookingServer(s grpc.ServiceRegistrar, srv BookingRPCServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

type rpcMethod func(BookingRPCServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call rpcMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(BookingRPCServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		})
	}
}

type BookingGRPCService struct {
	bookings domain.BookingService
	logger   *zerolog.Logger
}

func NewBookingGRPCService(bookings domain.BookingService, logger *zerolog.Logger) *BookingGRPCService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingGRPCService{bookings: bookings, logger: logger}
}

func (s *BookingGRPCService) AddBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := intField(req, "user_id", true)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	itemID, err := intField(req, "item_id", true)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	start, err := timeField(req, "start")
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	end, err := timeField(req, "end")
	if err != nil {
		return nil, rpcError(s.logger, err)
	}

	view, err := s.bookings.AddBooking(ctx, itemID, userID, start, end)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	return s.bookingStruct(*view)
}

func (s *BookingGRPCService) GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := intField(req, "user_id", true)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	bookingID, err := intField(req, "booking_id", true)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}

	view, err := s.bookings.GetBooking(ctx, bookingID, userID)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	return s.bookingStruct(*view)
}

func (s *BookingGRPCService) ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := intField(req, "user_id", true)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	from, err := intField(req, "from", false)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	size, err := intField(req, "size", false)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}

	filter := models.BookingFilter{
		State:  stringField(req, "state"),
		Offset: int(from),
		Limit:  int(size),
	}
	switch role := strings.ToLower(stringField(req, "role")); role {
	case "", "booker":
		filter.BookerID = userID
	case "owner":
		filter.OwnerID = userID
	default:
		return nil, rpcError(s.logger, illegalArgument("unknown role %q", role))
	}

	views, err := s.bookings.ListBookings(ctx, filter)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}

	list := make([]any, 0, len(views))
	for _, v := range views {
		list = append(list, bookingMap(v))
	}
	out, err := structpb.NewStruct(map[string]any{"bookings": list})
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	return out, nil
}

func (s *BookingGRPCService) SetApproval(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := intField(req, "user_id", true)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	bookingID, err := intField(req, "booking_id", true)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	approvedVal, ok := req.GetFields()["approved"]
	if !ok {
		return nil, rpcError(s.logger, illegalArgument("approved is required"))
	}
	approved, ok := approvedVal.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return nil, rpcError(s.logger, illegalArgument("approved must be a boolean"))
	}

	view, err := s.bookings.SetApproval(ctx, bookingID, approved.BoolValue, userID)
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	return s.bookingStruct(*view)
}

func (s *BookingGRPCService) bookingStruct(v models.BookingView) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(bookingMap(v))
	if err != nil {
		return nil, rpcError(s.logger, err)
	}
	return out, nil
}

func bookingMap(v models.BookingView) map[string]any {
	return map[string]any{
		"id":     v.ID,
		"start":  v.Start.Format(time.RFC3339Nano),
		"end":    v.End.Format(time.RFC3339Nano),
		"status": v.Status.String(),
		"booker": map[string]any{"id": v.Booker.ID, "name": v.Booker.Name},
		"item":   map[string]any{"id": v.Item.ID, "name": v.Item.Name},
	}
}

// intField reads a whole number. Struct numbers are doubles, so fractions and
// values beyond 2^53 are rejected.
func intField(req *structpb.Struct, name string, required bool) (int64, error) {
	val, ok := req.GetFields()[name]
	if !ok {
		if required {
			return 0, illegalArgument("%s is required", name)
		}
		return 0, nil
	}
	num, ok := val.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, illegalArgument("%s must be a number", name)
	}
	f := num.NumberValue
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, illegalArgument("%s must be an integer", name)
	}
	return int64(f), nil
}

func stringField(req *structpb.Struct, name string) string {
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

func timeField(req *structpb.Struct, name string) (time.Time, error) {
	raw := stringField(req, name)
	if raw == "" {
		return time.Time{}, illegalArgument("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, illegalArgument("%s: expected RFC 3339 timestamp, got %q", name, raw)
	}
	return t, nil
}

var _ BookingRPCServer = (*BookingGRPCService)(nil)
