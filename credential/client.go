package credential

import (
	"context"
	"errors"

	"github.com/stephnangue/nxauth/api"
	"github.com/stephnangue/nxauth/logger"
)

// ServiceClient composes expiry-driven renewal around a Caller. When a
// request fails with the service's credential-expired signal, the
// renewer replaces the persisted set and the original error is returned
// unchanged; the failed request is never replayed here. Callers that
// want a retry re-invoke the operation against the now-repaired
// credential.
type ServiceClient struct {
	caller  api.Caller
	renewer *Renewer
	log     logger.Logger
}

// NewServiceClient wraps caller with the given renewal strategy
func NewServiceClient(caller api.Caller, renewer *Renewer, log logger.Logger) *ServiceClient {
	return &ServiceClient{
		caller:  caller,
		renewer: renewer,
		log:     log,
	}
}

// Renewer exposes the injected renewal strategy
func (c *ServiceClient) Renewer() *Renewer {
	return c.renewer
}

// DoJSON performs the request, repairing the credential set on an
// expiry signal before surfacing the original failure
func (c *ServiceClient) DoJSON(ctx context.Context, method, path string, body, out interface{}) error {
	err := c.caller.DoJSON(ctx, method, path, body, out)
	if err == nil {
		return nil
	}

	var expired *api.TokenExpiredError
	if !errors.As(err, &expired) {
		return err
	}

	c.log.Debug("service reported expired credential, renewing",
		logger.String("service", expired.Service))

	if _, renewErr := c.renewer.Renew(ctx); renewErr != nil {
		c.log.Warn("credential renewal after expiry failed", logger.Err(renewErr))
	}

	return err
}

// BaseURL returns the wrapped caller's base address
func (c *ServiceClient) BaseURL() string {
	return c.caller.BaseURL()
}
