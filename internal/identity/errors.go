package identity

import (
	"context"
	"errors"

	"pulsepoint/pkg/types"

	ctypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// mapCognitoError sorts a Cognito failure into one of the identity error
// kinds. The Cognito exception stays reachable through errors.As.
func mapCognitoError(err error) error {
	if err == nil {
		return nil
	}

	var (
		notAuthorized *ctypes.NotAuthorizedException
		notFound      *ctypes.UserNotFoundException
		exists        *ctypes.UsernameExistsException
		notConfirmed  *ctypes.UserNotConfirmedException
		invalidPw     *ctypes.InvalidPasswordException
		codeMismatch  *ctypes.CodeMismatchException
		expiredCode   *ctypes.ExpiredCodeException
	)

	switch {
	case errors.As(err, &notAuthorized):
		return types.NewIdentityError(types.ErrInvalidCredentials, err)
	case errors.As(err, &notFound):
		return types.NewIdentityError(types.ErrUserNotFound, err)
	case errors.As(err, &exists):
		return types.NewIdentityError(types.ErrEmailAlreadyInUse, err)
	case errors.As(err, &notConfirmed):
		return types.NewIdentityError(types.ErrConfirmationRequired, err)
	case errors.As(err, &invalidPw), errors.As(err, &codeMismatch), errors.As(err, &expiredCode):
		return types.NewIdentityError(types.ErrInvalidCredentials, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	return types.NewIdentityError(types.ErrProviderError, err)
}
