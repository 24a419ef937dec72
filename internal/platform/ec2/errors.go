package ec2

import (
	"errors"

	"github.com/aws/smithy-go"
)

// ErrInstanceNotFound is matched by errors for instances the API does not
// (yet) know about. Freshly launched instances can briefly describe as not
// found because of eventual consistency.
var ErrInstanceNotFound = errors.New("instance not found")

// IsNotFound checks if an error indicates the instance is unknown.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInstanceNotFound) || isInstanceNotFoundCode(err)
}

// IsAuthFailure checks if an error indicates the credentials were rejected.
// These errors are fatal and should not be retried.
func IsAuthFailure(err error) bool {
	return isAPIErrorCode(err,
		"AuthFailure",
		"UnauthorizedOperation",
		"InvalidClientTokenId",
		"SignatureDoesNotMatch",
	)
}

// IsThrottled checks if an error indicates request throttling.
func IsThrottled(err error) bool {
	return isAPIErrorCode(err, "RequestLimitExceeded", "Throttling", "ThrottlingException")
}

func isInstanceNotFoundCode(err error) bool {
	return isAPIErrorCode(err, "InvalidInstanceID.NotFound")
}

// isAPIErrorCode checks if err is a smithy API error with one of the codes.
func isAPIErrorCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		for _, c := range codes {
			if code == c {
				return true
			}
		}
	}
	return false
}
