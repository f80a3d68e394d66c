package llm

import (
	"net/http"
	"time"

	"github.com/ppiankov/factrag/internal/util"
)

// newHTTPClient builds the transport shared by all providers. The client
// timeout is the provider default; per-call deadlines come from the context.
func newHTTPClient(config Config, fallback time.Duration) *http.Client {
	return util.NewHTTPClient(config.timeout(fallback), config.proxy())
}
