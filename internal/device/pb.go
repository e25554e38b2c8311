package device

import "google.golang.org/grpc"

// FixReport is one streamed position reading from a device app.
type FixReport struct {
	SessionId string
	Lat       float64
	Lng       float64
	AccuracyM float64
	Ts        int64
}

// Ack is returned when the stream closes.
type Ack struct{}

// FixIngestServer defines the gRPC contract.
type FixIngestServer interface {
	StreamFixes(FixIngest_StreamFixesServer) error
}

// RegisterFixIngestServer registers the service implementation.
func RegisterFixIngestServer(s *grpc.Server, srv FixIngestServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "device.FixIngest",
		HandlerType: (*FixIngestServer)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "StreamFixes",
			Handler:       _FixIngest_StreamFixes_Handler,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, srv)
}

// FixIngest_StreamFixesServer defines the bidi stream interface.
type FixIngest_StreamFixesServer interface {
	grpc.ServerStream
	SendAndClose(*Ack) error
	Recv() (*FixReport, error)
}

func _FixIngest_StreamFixes_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(FixIngestServer).StreamFixes(&fixStreamServer{ServerStream: stream})
}

type fixStreamServer struct {
	grpc.ServerStream
}

func (s *fixStreamServer) SendAndClose(m *Ack) error { return s.ServerStream.SendMsg(m) }

func (s *fixStreamServer) Recv() (*FixReport, error) {
	msg := new(FixReport)
	if err := s.ServerStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
