package evalrpc

import (
	"context"
	"net"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeServer struct {
	got  SubmitRequest
	resp SubmitResponse
	err  error
}

func (f *fakeServer) SubmitAnswer(_ context.Context, req SubmitRequest) (SubmitResponse, error) {
	f.got = req
	return f.resp, f.err
}

func dial(t *testing.T, srv EvaluatorServer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterEvaluatorServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func TestSubmitAnswer_RoundTrip(t *testing.T) {
	srv := &fakeServer{resp: SubmitResponse{RetriesLeft: 0, RewindSeconds: 30, Explanation: "Not quite", Summary: "Cells divide."}}
	c := dial(t, srv)

	resp, err := c.SubmitAnswer(context.Background(), SubmitRequest{
		SubmissionID: "sub-1", UserID: "learner-1", VideoID: 7, QuestionID: 42, Answer: "b", ObservedTime: 29.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if srv.got.QuestionID != 42 || srv.got.VideoID != 7 || srv.got.SubmissionID != "sub-1" || srv.got.ObservedTime != 29.5 {
		t.Fatalf("server saw %+v", srv.got)
	}
	if resp.Correct || resp.RetriesLeft != 0 || resp.RewindSeconds != 30 || resp.Summary != "Cells divide." {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSubmitAnswer_ErrorDetailsSurvive(t *testing.T) {
	st := status.New(codes.NotFound, "question not found")
	st, _ = st.WithDetails(&errdetails.ErrorInfo{Reason: ReasonQuestionNotFound, Domain: ErrorDomain})
	c := dial(t, &fakeServer{err: st.Err()})

	_, err := c.SubmitAnswer(context.Background(), SubmitRequest{QuestionID: 1, Answer: "x"})
	got, ok := status.FromError(err)
	if !ok || got.Code() != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	var reason string
	for _, d := range got.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			reason = info.GetReason()
		}
	}
	if reason != ReasonQuestionNotFound {
		t.Fatalf("expected reason %s, got %q", ReasonQuestionNotFound, reason)
	}
}

func TestRequestFromStruct_RejectsFractionalID(t *testing.T) {
	s, _ := structpb.NewStruct(map[string]any{"question_id": 1.5})
	if _, err := requestFromStruct(s); err == nil {
		t.Fatal("expected error for fractional question id")
	}
}
