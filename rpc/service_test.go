package rpc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubService answers status and health; every other method panics.
type stubService struct {
	Service
	statusCalls int
}

func (s *stubService) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	s.statusCalls++
	return &StatusResponse{NodeInfo: NodeInfo{ID: "stub"}}, nil
}

func (s *stubService) Health(context.Context, *HealthRequest) (*HealthResponse, error) {
	return nil, ErrInternalError.WithData("unhealthy")
}

type unknownRequest struct{}

func (unknownRequest) Method() string   { return "unknown" }
func (unknownRequest) NewResponse() any { return new(struct{}) }

func TestServe(t *testing.T) {
	svc := &stubService{}
	ctx := context.Background()

	res, err := Serve(ctx, svc, &StatusRequest{})
	require.NoError(t, err)
	require.IsType(t, &StatusResponse{}, res)
	require.Equal(t, "stub", res.(*StatusResponse).NodeInfo.ID)
	require.Equal(t, 1, svc.statusCalls)

	_, err = Serve(ctx, svc, &HealthRequest{})
	require.ErrorIs(t, err, ErrInternalError)

	_, err = Serve(ctx, svc, nil)
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = Serve(ctx, svc, unknownRequest{})
	require.ErrorIs(t, err, ErrMethodNotFound)
}

func TestNewRequest(t *testing.T) {
	for _, method := range Methods() {
		req, err := NewRequest(method)
		require.NoError(t, err)
		require.Equal(t, method, req.Method())
		require.NotNil(t, req.NewResponse())
	}

	_, err := NewRequest("dial_peers")
	require.ErrorIs(t, err, ErrMethodNotFound)
}

func TestMethods(t *testing.T) {
	methods := Methods()
	require.Len(t, methods, 14)
	require.True(t, sort.StringsAreSorted(methods))
	require.Contains(t, methods, MethodABCIQuery)
	require.Contains(t, methods, MethodBlockchain)
}

func TestRPCError(t *testing.T) {
	err := ErrBlockNotFound.WithDataf("height %d", 9)
	require.Equal(t, "rpc error -32001: Block not found: height 9", err.Error())
	require.Equal(t, "rpc error -32001: Block not found", ErrBlockNotFound.Error())
	require.Empty(t, ErrBlockNotFound.Data, "WithData copies")

	require.ErrorIs(t, err, ErrBlockNotFound)
	require.NotErrorIs(t, err, ErrInvalidHeight)

	wrapped := fmt.Errorf("calling block: %w", err)
	rpcErr, ok := IsRPCError(wrapped)
	require.True(t, ok)
	require.Equal(t, CodeBlockNotFound, rpcErr.Code)
	require.Same(t, err, AsRPCError(wrapped))

	_, ok = IsRPCError(errors.New("plain"))
	require.False(t, ok)
	internal := AsRPCError(errors.New("plain"))
	require.Equal(t, CodeInternalError, internal.Code)
	require.Equal(t, "plain", internal.Data)
}
