package telegram

import (
	"fmt"

	"concord/pkg/channels"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory 負責建立 Telegram Channels
type TelegramFactory struct{}

// Create 實作 ChannelFactory
func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, res *channels.Resources) (channels.Channel, error) {
	var tgCfg TelegramConfig
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &tgCfg); err != nil {
			return nil, fmt.Errorf("failed to parse telegram config: %w", err)
		}
	}

	if tgCfg.Token == "" {
		return nil, fmt.Errorf("missing telegram token")
	}

	return NewTelegramChannel(tgCfg, res.System.TelegramMessageLimit)
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}
