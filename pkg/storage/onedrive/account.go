package onedrive

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	auth "github.com/microsoft/kiota-authentication-azure-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
)

// AccountInfo is the display metadata captured when an account is connected
// or re-tested, shown next to the storage config in the dashboard.
type AccountInfo struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// FetchAccountInfo resolves the signed-in user's display name and email via
// the Graph SDK. The adapter's data plane never needs this; it exists so the
// config lifecycle can record whose account a token belongs to.
func FetchAccountInfo(ctx context.Context, accessToken string) (AccountInfo, error) {
	if accessToken == "" {
		return AccountInfo{}, fmt.Errorf("access token is required")
	}

	credential := &staticTokenCredential{accessToken: accessToken}
	authProvider, err := auth.NewAzureIdentityAuthenticationProviderWithScopes(credential, []string{"https://graph.microsoft.com/.default"})
	if err != nil {
		return AccountInfo{}, fmt.Errorf("failed to create auth provider: %w", err)
	}

	adapter, err := msgraphsdk.NewGraphRequestAdapter(authProvider)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("failed to create Graph request adapter: %w", err)
	}

	graphClient := msgraphsdk.NewGraphServiceClient(adapter)

	user, err := graphClient.Me().Get(ctx, nil)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("failed to fetch Microsoft account profile: %w", err)
	}

	info := AccountInfo{}
	if name := user.GetDisplayName(); name != nil {
		info.DisplayName = *name
	}
	if mail := user.GetMail(); mail != nil {
		info.Email = *mail
	} else if principal := user.GetUserPrincipalName(); principal != nil {
		info.Email = *principal
	}

	return info, nil
}

type staticTokenCredential struct {
	accessToken string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.accessToken,
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}
