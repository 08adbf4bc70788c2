package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/server/scope"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenVerifier turns a bearer token into its claims.
type TokenVerifier interface {
	Verify(token string) (map[string]any, error)
}

type ctxKey string

const scopeKey ctxKey = "scope"

const healthPrefix = "/grpc.health.v1.Health/"

// ScopeFromContext returns the caller scope stored by the token interceptor.
func ScopeFromContext(ctx context.Context) (scope.Scope, bool) {
	sc, ok := ctx.Value(scopeKey).(scope.Scope)
	return sc, ok
}

func (s *HealthServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug(ctx, "grpc call", "method", info.FullMethod, "code", status.Code(err).String(), "latency", time.Since(start))
	return resp, err
}

// accessTokenInterceptor guards every method except the health service.
func (s *HealthServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if strings.HasPrefix(info.FullMethod, healthPrefix) {
		return handler(ctx, req)
	}

	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("authorization"); len(values) > 0 {
			token = strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
		}
	}
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	if s.verifier == nil {
		return nil, status.Error(codes.Unauthenticated, "token verification unavailable")
	}

	claims, err := s.verifier.Verify(token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	sc := scope.Resolve(claims)
	if sc.Anonymous() {
		return nil, status.Error(codes.PermissionDenied, "no usable identity in token")
	}

	return handler(context.WithValue(ctx, scopeKey, sc), req)
}
