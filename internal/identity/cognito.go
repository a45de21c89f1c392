package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pulsepoint/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ctypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// CognitoAPI is the part of the Cognito client the adapter uses.
type CognitoAPI interface {
	InitiateAuth(ctx context.Context, params *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
	SignUp(ctx context.Context, params *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, params *cognitoidentityprovider.ConfirmSignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error)
	UpdateUserAttributes(ctx context.Context, params *cognitoidentityprovider.UpdateUserAttributesInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.UpdateUserAttributesOutput, error)
	RevokeToken(ctx context.Context, params *cognitoidentityprovider.RevokeTokenInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.RevokeTokenOutput, error)
}

type SignUpInput struct {
	Name     string
	Email    string
	Password string
	PhotoURL string
}

type ProfileUpdate struct {
	DisplayName string
	PhotoURL    string
}

func (a *Adapter) cognitoPasswordAuth(ctx context.Context, email, password string) (*types.Identity, error) {
	input := &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: ctypes.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(a.clientID),
		AuthParameters: map[string]string{
			"USERNAME": email,
			"PASSWORD": password,
		},
	}

	resp, err := a.cognito.InitiateAuth(ctx, input)
	if err != nil {
		return nil, mapCognitoError(err)
	}

	return a.cognitoIdentity(ctx, resp, "")
}

func (a *Adapter) cognitoRefresh(ctx context.Context, refreshToken string) (*types.Identity, error) {
	input := &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: ctypes.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(a.clientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
		},
	}

	resp, err := a.cognito.InitiateAuth(ctx, input)
	if err != nil {
		return nil, mapCognitoError(err)
	}

	// Cognito does not rotate the refresh token on this flow.
	return a.cognitoIdentity(ctx, resp, refreshToken)
}

func (a *Adapter) cognitoIdentity(ctx context.Context, resp *cognitoidentityprovider.InitiateAuthOutput, refreshToken string) (*types.Identity, error) {
	if resp.AuthenticationResult == nil || resp.AuthenticationResult.IdToken == nil {
		challenge := string(resp.ChallengeName)
		if challenge == "" {
			challenge = "no authentication result"
		}
		return nil, types.NewIdentityError(types.ErrProviderError, fmt.Errorf("unsupported challenge: %s", challenge))
	}

	if a.verifier == nil {
		return nil, types.NewIdentityError(types.ErrProviderError, errors.New("no identity token verifier configured"))
	}

	result := resp.AuthenticationResult
	idToken := aws.ToString(result.IdToken)

	claims, err := a.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, types.NewIdentityError(types.ErrProviderError, fmt.Errorf("verify id token: %w", err))
	}

	if rt := aws.ToString(result.RefreshToken); rt != "" {
		refreshToken = rt
	}

	expiresAt := claims.ExpiresAt
	if expiresAt.IsZero() && result.ExpiresIn > 0 {
		expiresAt = a.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	}

	return &types.Identity{
		UID:          claims.Subject,
		Email:        strings.ToLower(claims.Email),
		DisplayName:  claims.Name,
		PhotoURL:     claims.Picture,
		Provider:     types.IdentityProviderPassword,
		Token:        idToken,
		AccessToken:  aws.ToString(result.AccessToken),
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func signUpAttributes(in SignUpInput) []ctypes.AttributeType {
	attrs := []ctypes.AttributeType{
		{Name: aws.String("email"), Value: aws.String(in.Email)},
	}
	if in.Name != "" {
		attrs = append(attrs, ctypes.AttributeType{Name: aws.String("name"), Value: aws.String(in.Name)})
	}
	if in.PhotoURL != "" {
		attrs = append(attrs, ctypes.AttributeType{Name: aws.String("picture"), Value: aws.String(in.PhotoURL)})
	}
	return attrs
}
