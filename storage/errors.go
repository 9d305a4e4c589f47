package storage

import (
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// NotFoundError reports that the target row does not exist remotely.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("content item %s not found", e.ID)
}

// NotFound marks the error for the board gateway's errors.As check.
func (e NotFoundError) NotFound() {}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
