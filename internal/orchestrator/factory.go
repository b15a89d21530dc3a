package orchestrator

import (
	"context"
	"fmt"

	"tgharvester/internal/config"
	"tgharvester/internal/platform"
	"tgharvester/internal/session"
)

// buildFactory returns a session.Factory that constructs one
// *platform.TelegoClient per set of credentials, mirroring the teacher's
// main.go telego.NewBot(cfg.BotToken, botOpts...) construction. dcID is
// assigned by position in cfg.SessionNames, since Bot API exposes no real
// datacenter id (see platform.NewTelegoClient's doc comment).
func buildFactory(cfg *config.Config) session.Factory {
	dcByName := make(map[string]int, len(cfg.SessionNames))
	for i, name := range cfg.SessionNames {
		dcByName[name] = i
	}

	return func(ctx context.Context, creds session.Credentials) (platform.Client, error) {
		bot, err := platform.NewTelegoBot(creds.BotToken, creds.Proxy, cfg.Debug)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: build bot for session %q: %w", creds.Name, err)
		}
		dcID := dcByName[creds.Name]
		return platform.NewTelegoClient(bot, creds.Name, dcID, creds.ScratchChat), nil
	}
}

func toSessionCredentials(c config.Credentials) session.Credentials {
	return session.Credentials{Name: c.Name, BotToken: c.BotToken, Proxy: c.Proxy, ScratchChat: c.ScratchChat}
}
