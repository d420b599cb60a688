package handler

import (
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// SessionProvider identifies the signed-in user behind a request.
type SessionProvider interface {
	UserID(req events.APIGatewayProxyRequest) (string, bool)
}

// ClaimsSessionProvider reads the user from the API Gateway authorizer: the
// JWT "sub" claim for Cognito/JWT authorizers, or the principalId set by a
// Lambda authorizer.
type ClaimsSessionProvider struct{}

func (ClaimsSessionProvider) UserID(req events.APIGatewayProxyRequest) (string, bool) {
	auth := req.RequestContext.Authorizer
	if auth == nil {
		return "", false
	}
	if claims, ok := auth["claims"].(map[string]any); ok {
		if sub, ok := claims["sub"].(string); ok && strings.TrimSpace(sub) != "" {
			return strings.TrimSpace(sub), true
		}
	}
	if p, ok := auth["principalId"].(string); ok && strings.TrimSpace(p) != "" {
		return strings.TrimSpace(p), true
	}
	return "", false
}

// HeaderSessionProvider trusts a request header. Only for local development.
type HeaderSessionProvider struct {
	Header string
}

func (p HeaderSessionProvider) UserID(req events.APIGatewayProxyRequest) (string, bool) {
	name := p.Header
	if name == "" {
		name = "X-User-Id"
	}
	id := headerValue(req.Headers, name)
	return id, id != ""
}
