// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/robmacrae/coop/internal/agentstate"
	"github.com/robmacrae/coop/internal/codes"
	"github.com/robmacrae/coop/internal/encode"
	"github.com/robmacrae/coop/internal/session"
	"github.com/robmacrae/coop/internal/transport"
)

// Server implements the Agent gRPC service by hand, against the Store
// registry, with no generated stubs involved.
type Server struct {
	Manager *session.Manager
	Auth    *transport.Auth
}

// NewServer builds a grpcapi Server.
func NewServer(mgr *session.Manager, auth *transport.Auth) *Server {
	return &Server{Manager: mgr, Auth: auth}
}

// ServiceDesc is registered on a *grpc.Server via RegisterService, mirroring
// what protoc-gen-go-grpc would emit for a service with one unary GetAgent
// RPC, one unary Nudge/Respond/Switch RPC each, and a server-streaming
// StreamEvents RPC — all carried over the JSON codec from codec.go.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "coop.v1.Agent",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAgent", Handler: getAgentHandler},
		{MethodName: "Nudge", Handler: nudgeHandler},
		{MethodName: "Respond", Handler: respondHandler},
		{MethodName: "Switch", Handler: switchHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamEvents", Handler: streamEventsHandler, ServerStreams: true},
	},
	Metadata: "coop/v1/agent.proto",
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type getAgentResponse struct {
	State agentstate.AgentState `json:"state"`
	Seq   uint64                `json:"seq"`
}

func getAgentHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	var req sessionRequest
	if err := dec(&req); err != nil {
		return nil, status.Error(grpccodes.InvalidArgument, err.Error())
	}
	store, err := s.lookup(req.SessionID)
	if err != nil {
		return nil, err
	}
	state, seq := store.Fuser.Current()
	return &getAgentResponse{State: state, Seq: seq}, nil
}

type nudgeRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type outcomeResponse struct {
	Outcome string `json:"outcome"`
}

func nudgeHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	var req nudgeRequest
	if err := dec(&req); err != nil {
		return nil, status.Error(grpccodes.InvalidArgument, err.Error())
	}
	store, err := s.lookup(req.SessionID)
	if err != nil {
		return nil, err
	}
	if store.Nudge == nil {
		return nil, codeError(codes.NoDriver, "no nudge encoder configured for this vendor")
	}
	const owner = "grpc:nudge"
	if !store.WriteLock.TryAcquire(owner) {
		return nil, codeError(codes.WriterBusy, "writer lock held by another connection")
	}
	defer store.WriteLock.Release(owner)

	for _, step := range store.Nudge.Encode(req.Message) {
		store.Input.Write(step.Bytes)
		if step.DelayAfter != nil {
			drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := store.Input.WaitForDrain(drainCtx)
			cancel()
			if err != nil {
				return nil, status.Error(grpccodes.Internal, err.Error())
			}
		}
	}
	return &outcomeResponse{Outcome: "sent"}, nil
}

// respondRequest mirrors the wire shape `{accept?, option?, text?, answers?}`;
// which picker it resolves against comes from the session's current prompt
// kind, never from a client-supplied kind field.
type respondRequest struct {
	SessionID string                  `json:"session_id"`
	Accept    *bool                   `json:"accept,omitempty"`
	Option    *uint32                 `json:"option,omitempty"`
	Text      *string                 `json:"text,omitempty"`
	Answers   []encode.QuestionAnswer `json:"answers,omitempty"`
}

func respondHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	var req respondRequest
	if err := dec(&req); err != nil {
		return nil, status.Error(grpccodes.InvalidArgument, err.Error())
	}
	store, err := s.lookup(req.SessionID)
	if err != nil {
		return nil, err
	}
	if store.Respond == nil {
		return nil, codeError(codes.NoDriver, "no respond encoder configured for this vendor")
	}
	state, _ := store.Fuser.Current()
	if !state.IsPrompt() {
		return nil, codeError(codes.NoPrompt, "no pending prompt")
	}

	const owner = "grpc:respond"
	if !store.WriteLock.TryAcquire(owner) {
		return nil, codeError(codes.WriterBusy, "writer lock held by another connection")
	}
	defer store.WriteLock.Release(owner)

	var steps []agentstate.NudgeStep
	switch state.Prompt.Kind {
	case "permission":
		steps = store.Respond.EncodePermission(transport.ResolvePermissionOption(req.Accept, req.Option))
	case "plan":
		steps = store.Respond.EncodePlan(transport.ResolvePlanOption(req.Accept, req.Option), req.Text)
	case "question":
		steps = store.Respond.EncodeQuestion(req.Answers, len(state.Prompt.Questions))
	case "setup":
		if req.Option == nil {
			return nil, codeError(codes.BadRequest, "setup respond requires option")
		}
		steps = store.Respond.EncodeSetup(*req.Option)
	default:
		return nil, codeError(codes.BadRequest, "unrecognized prompt kind")
	}
	for _, step := range steps {
		store.Input.Write(step.Bytes)
	}
	return &outcomeResponse{Outcome: "sent"}, nil
}

type switchRequestMsg struct {
	SessionID   string            `json:"session_id"`
	Credentials map[string]string `json:"credentials,omitempty"`
	Force       bool              `json:"force,omitempty"`
}

func switchHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	var req switchRequestMsg
	if err := dec(&req); err != nil {
		return nil, status.Error(grpccodes.InvalidArgument, err.Error())
	}
	store, err := s.lookup(req.SessionID)
	if err != nil {
		return nil, err
	}
	sr := &session.SwitchRequest{Credentials: req.Credentials, Force: req.Force, Result: make(chan session.SwitchOutcome, 1)}
	if !store.RequestSwitch(ctx, sr) {
		return nil, codeError(codes.SwitchInProgress, "a switch is already in progress")
	}
	return &outcomeResponse{Outcome: "accepted"}, nil
}

// streamEventsHandler pushes every fused transition as a server-streaming
// message until the client disconnects or the session exits.
func streamEventsHandler(srv any, stream grpc.ServerStream) error {
	s := srv.(*Server)
	ctx := stream.Context()
	if err := s.authenticate(ctx); err != nil {
		return err
	}
	var req sessionRequest
	if err := stream.RecvMsg(&req); err != nil {
		return status.Error(grpccodes.InvalidArgument, err.Error())
	}
	store, err := s.lookup(req.SessionID)
	if err != nil {
		return err
	}

	ch := make(chan agentstate.TransitionEvent, 16)
	store.Fuser.Subscribe(ch)
	defer store.Fuser.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			if err := stream.SendMsg(&ev); err != nil {
				return err
			}
			if ev.Next.IsTerminal() {
				return nil
			}
		}
	}
}

func (s *Server) lookup(id string) (*session.Store, error) {
	store, ok := s.Manager.Get(id)
	if !ok {
		return nil, codeError(codes.BadRequest, "unknown session")
	}
	return store, nil
}

func (s *Server) authenticate(ctx context.Context) error {
	if s.Auth == nil {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return codeError(codes.Unauthorized, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 || !s.Auth.Check(vals[0]) {
		return codeError(codes.Unauthorized, "invalid bearer token")
	}
	return nil
}

// codeError converts a canonical codes.Code into a gRPC status error
// carrying the matching google.golang.org/grpc/codes.Code.
func codeError(c codes.Code, message string) error {
	return status.Error(grpccodes.Code(c.GRPCCode()), message)
}

func derefU32(p *uint32) uint32 {
	if p == nil {
		return 0
	}
	return *p
}
