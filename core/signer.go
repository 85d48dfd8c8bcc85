package core

import (
	"context"
	"fmt"
	"strings"
)

const HeaderAuthorization = "Authorization"

type BearerTokenSigner struct{}

func (BearerTokenSigner) Sign(_ context.Context, req *TransportRequest, token TokenPair) error {
	if req == nil {
		return fmt.Errorf("core: transport request is required")
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return badInputError("core: access token is required for bearer signing", nil)
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers[HeaderAuthorization] = token.Bearer()
	return nil
}

var _ Signer = BearerTokenSigner{}
