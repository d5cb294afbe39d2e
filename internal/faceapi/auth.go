package faceapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// CognitiveServicesScope is the token scope accepted by the face service.
const CognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

const subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"

// Authorizer attaches credentials to an outgoing request.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// KeyAuthorizer authenticates with a subscription key.
type KeyAuthorizer string

// Authorize sets the subscription key header.
func (k KeyAuthorizer) Authorize(_ context.Context, req *http.Request) error {
	req.Header.Set(subscriptionKeyHeader, string(k))
	return nil
}

// CredentialSource resolves an ambient token credential.
type CredentialSource func() (azcore.TokenCredential, error)

// DefaultCredentialSource uses the azidentity default chain (environment,
// workload identity, managed identity, Azure CLI).
func DefaultCredentialSource() (azcore.TokenCredential, error) {
	return azidentity.NewDefaultAzureCredential(nil)
}

// TokenAuthorizer authenticates with bearer tokens from an ambient identity.
// The identity is resolved on the first request, so a missing identity shows
// up as a CredentialError at use rather than at construction.
type TokenAuthorizer struct {
	source CredentialSource
	scope  string

	mu   sync.Mutex
	cred azcore.TokenCredential
}

// NewTokenAuthorizer returns an authorizer backed by source. A nil source
// selects DefaultCredentialSource.
func NewTokenAuthorizer(source CredentialSource) *TokenAuthorizer {
	if source == nil {
		source = DefaultCredentialSource
	}
	return &TokenAuthorizer{source: source, scope: CognitiveServicesScope}
}

// Authorize fetches a token and sets the Authorization header.
func (a *TokenAuthorizer) Authorize(ctx context.Context, req *http.Request) error {
	cred, err := a.credential()
	if err != nil {
		return &CredentialError{Err: err}
	}
	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{a.scope}})
	if err != nil {
		return &CredentialError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	return nil
}

func (a *TokenAuthorizer) credential() (azcore.TokenCredential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cred != nil {
		return a.cred, nil
	}
	cred, err := a.source()
	if err != nil {
		return nil, err
	}
	a.cred = cred
	return cred, nil
}
