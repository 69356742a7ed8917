// Package evalrpc is the gRPC contract between the player and the answer
// evaluator. Messages travel as google.protobuf.Struct so the contract needs
// no generated code; the typed Go values are converted at the edges.
package evalrpc

import (
	"context"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName      = "checkpoint.evaluator.v1.Evaluator"
	submitAnswerName = "/" + ServiceName + "/SubmitAnswer"

	// ErrorDomain is the errdetails.ErrorInfo domain of evaluator errors.
	ErrorDomain = "evaluator.checkpoint"
)

// ErrorInfo reasons shared by server and client.
const (
	ReasonQuestionNotFound = "QUESTION_NOT_FOUND"
	ReasonInvalidAnswer    = "INVALID_ANSWER"
	ReasonGraderFailed     = "GRADER_FAILED"
)

type SubmitRequest struct {
	SubmissionID string
	UserID       string
	VideoID      int64
	QuestionID   int64
	Answer       string
	ObservedTime float64
}

type SubmitResponse struct {
	Correct       bool
	RetriesLeft   int
	RewindSeconds float64
	Explanation   string
	Summary       string
}

func (r SubmitRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"submission_id": r.SubmissionID,
		"user_id":       r.UserID,
		"video_id":      float64(r.VideoID),
		"question_id":   float64(r.QuestionID),
		"answer":        r.Answer,
		"observed_time": r.ObservedTime,
	})
}

func requestFromStruct(s *structpb.Struct) (SubmitRequest, error) {
	f := s.GetFields()
	videoID, err := integer(f, "video_id")
	if err != nil {
		return SubmitRequest{}, err
	}
	questionID, err := integer(f, "question_id")
	if err != nil {
		return SubmitRequest{}, err
	}
	return SubmitRequest{
		SubmissionID: f["submission_id"].GetStringValue(),
		UserID:       f["user_id"].GetStringValue(),
		VideoID:      videoID,
		QuestionID:   questionID,
		Answer:       f["answer"].GetStringValue(),
		ObservedTime: f["observed_time"].GetNumberValue(),
	}, nil
}

func (r SubmitResponse) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"correct":        r.Correct,
		"retries_left":   float64(r.RetriesLeft),
		"rewind_seconds": r.RewindSeconds,
		"explanation":    r.Explanation,
		"summary":        r.Summary,
	})
}

func responseFromStruct(s *structpb.Struct) (SubmitResponse, error) {
	f := s.GetFields()
	retries, err := integer(f, "retries_left")
	if err != nil {
		return SubmitResponse{}, err
	}
	return SubmitResponse{
		Correct:       f["correct"].GetBoolValue(),
		RetriesLeft:   int(retries),
		RewindSeconds: f["rewind_seconds"].GetNumberValue(),
		Explanation:   f["explanation"].GetStringValue(),
		Summary:       f["summary"].GetStringValue(),
	}, nil
}

func integer(f map[string]*structpb.Value, key string) (int64, error) {
	v, ok := f[key]
	if !ok {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > 1<<53 {
		return 0, fmt.Errorf("field %s: expected an integer", key)
	}
	return int64(n.NumberValue), nil
}

// EvaluatorServer is implemented by the evaluator service.
type EvaluatorServer interface {
	SubmitAnswer(ctx context.Context, req SubmitRequest) (SubmitResponse, error)
}

// RegisterEvaluatorServer registers srv on s.
func RegisterEvaluatorServer(s grpc.ServiceRegistrar, srv EvaluatorServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EvaluatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitAnswer", Handler: submitAnswerHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "evalrpc",
}

func submitAnswerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		typed, err := requestFromStruct(req.(*structpb.Struct))
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		resp, err := srv.(EvaluatorServer).SubmitAnswer(ctx, typed)
		if err != nil {
			return nil, err
		}
		return resp.toStruct()
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitAnswerName}
	return interceptor(ctx, in, info, call)
}

// Client calls a remote EvaluatorServer.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) SubmitAnswer(ctx context.Context, req SubmitRequest, opts ...grpc.CallOption) (SubmitResponse, error) {
	in, err := req.toStruct()
	if err != nil {
		return SubmitResponse{}, status.Error(codes.InvalidArgument, err.Error())
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, submitAnswerName, in, out, opts...); err != nil {
		return SubmitResponse{}, err
	}
	resp, err := responseFromStruct(out)
	if err != nil {
		return SubmitResponse{}, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}
