package authentication

import (
	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/handler"
	"github.com/dmitrymomot/authkit/pkg/logger"
)

type configResponse struct {
	Version        uint64        `json:"version"`
	EnabledMethods []string      `json:"enabledMethods"`
	Settings       auth.Settings `json:"settings"`
}

func newConfigResponse(snap *auth.Snapshot) configResponse {
	return configResponse{
		Version:        snap.Version(),
		EnabledMethods: snap.EnabledMethods(),
		Settings:       snap.Settings().Redacted(),
	}
}

func (m *Module) getConfig(_ handler.Context, _ struct{}) handler.Response {
	return handler.JSON(newConfigResponse(m.settings.Snapshot()))
}

// putConfig replaces the settings document. Redacted secrets sent back
// unchanged keep their stored values.
func (m *Module) putConfig(ctx handler.Context, settings auth.Settings) handler.Response {
	if err := m.settings.Update(settings); err != nil {
		return handler.Error(err)
	}
	snap := m.settings.Snapshot()
	m.logger.InfoContext(ctx, "authentication settings updated",
		logger.Event("settings_updated"),
		logger.Component("authentication"),
	)
	return handler.JSON(newConfigResponse(snap))
}
