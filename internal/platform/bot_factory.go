package platform

import (
	"fmt"

	"github.com/mymmrac/telego"
)

// NewTelegoBot mirrors main.go's botOpts construction
// (telego.WithDefaultLogger / telego.WithDefaultDebugLogger +
// telego.NewBot(cfg.BotToken, botOpts...)), adding the proxied HTTP
// client from ProxyConfig when one is configured.
func NewTelegoBot(token string, proxy ProxyConfig, debug bool) (*telego.Bot, error) {
	opts := []telego.BotOption{telego.WithDefaultLogger(false, false)}
	if debug {
		opts = []telego.BotOption{telego.WithDefaultDebugLogger()}
	}

	httpClient, err := proxy.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("platform: proxy client: %w", err)
	}
	opts = append(opts, telego.WithHTTPClient(httpClient))

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("platform: telego.NewBot: %w", err)
	}
	return bot, nil
}
