package mediaserver

import (
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/BigTonyTones/onvif-gateway/internal/apperr"
	"github.com/BigTonyTones/onvif-gateway/internal/recipe"
)

// document is the on-disk shape of the generated media-server
// configuration file (spec.md §6): a `paths` map plus the handful of
// global ports the gateway itself needs to agree with the media server on.
type document struct {
	RTSPPort int                    `yaml:"rtspPort"`
	HLSPort  int                    `yaml:"hlsPort"`
	APIPort  int                    `yaml:"apiPort"`
	Paths    map[string]recipe.Path `yaml:"paths"`
}

// writeConfig atomically replaces the media-server configuration file
// (temp file + fsync + rename via renameio, same mechanism as the Config
// Store -- spec.md §6: "Written atomically to a known path").
func writeConfig(path string, paths map[string]recipe.Path, rtspPort, hlsPort, apiPort int) error {
	doc := document{RTSPPort: rtspPort, HLSPort: hlsPort, APIPort: apiPort, Paths: paths}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "marshal media-server configuration")
	}

	t, err := renameio.NewPendingFile(path)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "open temp media-server config file")
	}
	defer t.Cleanup()

	if _, err := t.Write(data); err != nil {
		return apperr.Wrap(apperr.Internal, err, "write temp media-server config file")
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "replace media-server config file")
	}
	return nil
}
