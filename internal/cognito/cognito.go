package cognito

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotAuthorized is returned for a wrong username or password.
	ErrNotAuthorized = errors.New("incorrect username or password")
	// ErrUserExists is returned when signing up a username that is taken.
	ErrUserExists = errors.New("username already exists")
	// ErrUserNotConfirmed is returned when signing in before confirming the account.
	ErrUserNotConfirmed = errors.New("user is not confirmed")
	// ErrInvalidCode is returned for a wrong or expired confirmation code.
	ErrInvalidCode = errors.New("invalid confirmation code")
	// ErrInvalidParameter is returned when the provider rejects the request values.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrChallenge is returned when sign in needs a further challenge this API does not handle.
	ErrChallenge = errors.New("authentication challenge required")
)

// CognitoAPI is the subset of the Cognito user pool client used by IdentityProvider.
type CognitoAPI interface {
	SignUp(ctx context.Context, params *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, params *cognitoidentityprovider.ConfirmSignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error)
	InitiateAuth(ctx context.Context, params *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
}

// Tokens are the tokens issued on a successful sign in.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int32  `json:"expiresIn"`
}

// IdentityProvider manages user accounts in a Cognito user pool app client.
type IdentityProvider struct {
	client       CognitoAPI
	clientID     string
	clientSecret string
}

// NewIdentityProvider creates an identity provider for the app client. When
// the app client has a secret every request carries a SECRET_HASH.
func NewIdentityProvider(client CognitoAPI, clientID, clientSecret string) *IdentityProvider {
	return &IdentityProvider{
		client:       client,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// SignUp registers a user with an email attribute.
func (p *IdentityProvider) SignUp(ctx context.Context, username, email, password string) error {
	out, err := p.client.SignUp(ctx, &cognitoidentityprovider.SignUpInput{
		ClientId:   aws.String(p.clientID),
		Username:   aws.String(username),
		Password:   aws.String(password),
		SecretHash: p.secretHash(username),
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(email)},
		},
	})
	if err != nil {
		return mapCognitoError(err, "failed to sign up")
	}

	log.Info().Str("username", username).Bool("confirmed", out.UserConfirmed).Msg("User signed up")
	return nil
}

// ConfirmSignUp confirms a registration with the code sent to the user.
func (p *IdentityProvider) ConfirmSignUp(ctx context.Context, username, code string) error {
	_, err := p.client.ConfirmSignUp(ctx, &cognitoidentityprovider.ConfirmSignUpInput{
		ClientId:         aws.String(p.clientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		SecretHash:       p.secretHash(username),
	})
	if err != nil {
		return mapCognitoError(err, "failed to confirm sign up")
	}

	log.Info().Str("username", username).Msg("User confirmed")
	return nil
}

// SignIn authenticates with USER_PASSWORD_AUTH.
func (p *IdentityProvider) SignIn(ctx context.Context, username, password string) (*Tokens, error) {
	params := map[string]string{
		"USERNAME": username,
		"PASSWORD": password,
	}
	if hash := p.secretHash(username); hash != nil {
		params["SECRET_HASH"] = *hash
	}

	out, err := p.client.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		ClientId:       aws.String(p.clientID),
		AuthFlow:       types.AuthFlowTypeUserPasswordAuth,
		AuthParameters: params,
	})
	if err != nil {
		return nil, mapCognitoError(err, "failed to sign in")
	}

	result := out.AuthenticationResult
	if result == nil {
		return nil, fmt.Errorf("%w: %s", ErrChallenge, out.ChallengeName)
	}

	return &Tokens{
		AccessToken:  aws.ToString(result.AccessToken),
		IDToken:      aws.ToString(result.IdToken),
		RefreshToken: aws.ToString(result.RefreshToken),
		TokenType:    aws.ToString(result.TokenType),
		ExpiresIn:    result.ExpiresIn,
	}, nil
}

// secretHash returns base64(HMAC-SHA256(secret, username+clientID)), or nil
// when the app client has no secret.
func (p *IdentityProvider) secretHash(username string) *string {
	if p.clientSecret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(p.clientSecret))
	mac.Write([]byte(username + p.clientID))
	return aws.String(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

func mapCognitoError(err error, msg string) error {
	var (
		notAuthorized *types.NotAuthorizedException
		exists        *types.UsernameExistsException
		notConfirmed  *types.UserNotConfirmedException
		notFound      *types.UserNotFoundException
		mismatch      *types.CodeMismatchException
		expired       *types.ExpiredCodeException
		badPassword   *types.InvalidPasswordException
		badParameter  *types.InvalidParameterException
	)

	switch {
	case errors.As(err, &notAuthorized), errors.As(err, &notFound):
		return fmt.Errorf("%s: %w", msg, ErrNotAuthorized)
	case errors.As(err, &exists):
		return fmt.Errorf("%s: %w", msg, ErrUserExists)
	case errors.As(err, &notConfirmed):
		return fmt.Errorf("%s: %w", msg, ErrUserNotConfirmed)
	case errors.As(err, &mismatch), errors.As(err, &expired):
		return fmt.Errorf("%s: %w", msg, ErrInvalidCode)
	case errors.As(err, &badPassword), errors.As(err, &badParameter):
		return fmt.Errorf("%s: %w: %v", msg, ErrInvalidParameter, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s: %w", msg, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
