package opensearch

import (
	"context"
	"errors"

	"github.com/opensearch-project/opensearch-go/v2"
)

// Healthcheck returns a func(context.Context) error probe over the client,
// the shape health endpoints expect. The probe calls the cluster info
// endpoint, which is cheap and requires no index permissions.
func Healthcheck(client *opensearch.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, err := client.Info(
			client.Info.WithContext(ctx),
		); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
