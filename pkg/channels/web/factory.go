package web

import (
	"fmt"

	"concord/pkg/channels"

	jsoniter "github.com/json-iterator/go"
)

// WebFactory 負責建立 Web Channels
type WebFactory struct{}

// Create 實作 ChannelFactory
func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, res *channels.Resources) (channels.Channel, error) {
	var pCfg WebConfig

	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &pCfg); err != nil {
			return nil, fmt.Errorf("failed to parse web config: %w", err)
		}
	}

	// 綁定位址預設跟隨環境變數
	if pCfg.Address == "" {
		pCfg.Address = res.Env.ServerAddress
	}
	if pCfg.Port == 0 {
		pCfg.Port = res.Env.ServerPort
	}

	return NewWebChannel(pCfg, res.Sessions, res.Status), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
