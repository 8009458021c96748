// Package handler holds the HTTP endpoints of the bridge. Handlers resolve
// the active asset backend per request so a config change applies to the
// very next call.
package handler

import (
	"github.com/jaskirat05/graviton-bridge/pkg/bridgecfg"
	"github.com/jaskirat05/graviton-bridge/pkg/controlauth"
	"github.com/jaskirat05/graviton-bridge/pkg/ledger"
	"github.com/jaskirat05/graviton-bridge/pkg/provider"
	"github.com/jaskirat05/graviton-bridge/pkg/provider/router"
	"github.com/jaskirat05/graviton-bridge/pkg/templates"
	"github.com/jaskirat05/graviton-bridge/pkg/validator"
)

// BridgeHandler wires the bridge services into hertz endpoints.
type BridgeHandler struct {
	configStore  *bridgecfg.Store
	ledger       *ledger.Ledger
	templates    *templates.Store
	verifier     *controlauth.Verifier
	upload       *validator.Upload
	workerIDPath string

	// overridable in tests
	providerFor func(bridgecfg.Config) (provider.AssetProvider, error)
}

// NewBridgeHandler builds the handler set. ledger may be nil when history
// recording is disabled.
func NewBridgeHandler(
	configStore *bridgecfg.Store,
	l *ledger.Ledger,
	t *templates.Store,
	verifier *controlauth.Verifier,
	upload *validator.Upload,
	workerIDPath string,
) *BridgeHandler {
	return &BridgeHandler{
		configStore:  configStore,
		ledger:       l,
		templates:    t,
		verifier:     verifier,
		upload:       upload,
		workerIDPath: workerIDPath,
		providerFor:  router.ForConfig,
	}
}

// Verifier exposes the control-plane verifier for middleware registration.
func (h *BridgeHandler) Verifier() *controlauth.Verifier {
	return h.verifier
}

func (h *BridgeHandler) activeProvider() (provider.AssetProvider, error) {
	return h.providerFor(h.configStore.Effective())
}
