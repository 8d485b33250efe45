package hcloud

import (
	"errors"
	"fmt"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/provider"
)

// ErrUnsupported marks a resource kind the Hetzner Cloud API cannot express.
var ErrUnsupported = errors.New("hcloud: unsupported resource kind")

// isTransient checks if an error is a temporary API condition worth
// retrying: locked resources (action still running), conflicts from
// concurrent changes, and rate limits.
func isTransient(err error) bool {
	return isHCloudErrorCode(err,
		hcloud.ErrorCodeLocked,
		hcloud.ErrorCodeConflict,
		hcloud.ErrorCodeResourceLocked,
		hcloud.ErrorCodeResourceUnavailable,
		hcloud.ErrorCodeRateLimitExceeded,
	)
}

// isHCloudErrorCode checks if the error is an hcloud API error with one of
// the given codes.
func isHCloudErrorCode(err error, codes ...hcloud.ErrorCode) bool {
	if err == nil {
		return false
	}
	var hcloudErr hcloud.Error
	if errors.As(err, &hcloudErr) {
		for _, code := range codes {
			if hcloudErr.Code == code {
				return true
			}
		}
	}
	return false
}

// isNotFound checks if an error indicates a missing API object.
func isNotFound(err error) bool {
	return isHCloudErrorCode(err, hcloud.ErrorCodeNotFound)
}

// wrapErr classifies an API failure into a *provider.Error so the executor
// knows whether to retry.
func wrapErr(id graph.Identity, op provider.Op, err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%s %s: %w", op, id, provider.ErrNotFound)
	}
	return &provider.Error{
		ID:        id,
		Op:        string(op),
		Retryable: isTransient(err),
		Err:       err,
	}
}
