package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/platform/logger"
	"github.com/davshaw/gengate/internal/store/model"
	"github.com/davshaw/gengate/internal/store/sqlite"
	"go.uber.org/zap"
)

// Seeds a development database with one channel per provider, a model
// mapping, and optionally a bot account from SEED_USER_TOKEN.
func main() {
	logger.Initialize(logger.DefaultConfig())
	defer logger.Sync()
	log := logger.Get()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	repo, err := sqlite.NewSQLiteStorage(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer repo.Close()

	ctx := context.Background()

	seeds := []struct {
		provider string
		baseURL  string
		model    string
		targets  []string
		key      string
	}{
		{
			provider: "vidu",
			baseURL:  cfg.Providers.Vidu.BaseURL,
			model:    "vidu-video",
			targets:  []string{"viduq1", "vidu2.0"},
			key:      os.Getenv("SEED_VIDU_KEY"),
		},
		{
			provider: "doubao",
			baseURL:  cfg.Providers.Seedance.BaseURL,
			model:    "seedance-video",
			targets:  []string{"doubao-seedance-1-0-pro-250528"},
			key:      os.Getenv("SEED_DOUBAO_KEY"),
		},
	}

	for _, s := range seeds {
		if s.key == "" {
			log.Info("Skipping provider, no seed key", zap.String("provider", s.provider))
			continue
		}

		chID, err := repo.Channels().CreateChannel(ctx, &model.Channel{
			Name:        s.provider + "-official",
			Provider:    s.provider,
			ChannelType: model.ChannelTypeOfficial,
			BaseURL:     s.baseURL,
			StorageType: model.StorageTypeForward,
			IsActive:    true,
		})
		if err != nil {
			log.Fatal("Failed to create channel", zap.String("provider", s.provider), zap.Error(err))
		}

		if _, err := repo.Channels().CreateKey(ctx, &model.ChannelKey{
			ChannelID: chID,
			APIKey:    s.key,
			Name:      s.provider + "-key",
			IsActive:  true,
		}); err != nil {
			log.Fatal("Failed to create key", zap.Error(err))
		}

		targets, _ := json.Marshal(s.targets)
		if err := repo.Channels().UpsertModelChannel(ctx, &model.ModelChannel{
			ModelName:    s.model,
			ChannelID:    chID,
			TargetModels: string(targets),
			IsActive:     true,
		}); err != nil {
			log.Fatal("Failed to create model mapping", zap.Error(err))
		}

		log.Info("Seeded channel", zap.String("provider", s.provider), zap.Int64("channel_id", chID))
	}

	if token := os.Getenv("SEED_USER_TOKEN"); token != "" {
		id, err := repo.Accounts().Create(ctx, &model.BotAccount{
			Name:      "seed-account",
			UserToken: token,
			GuildID:   os.Getenv("SEED_GUILD_ID"),
			ChannelID: os.Getenv("SEED_CHANNEL_ID"),
			IsActive:  true,
		})
		if err != nil {
			log.Fatal("Failed to create bot account", zap.Error(err))
		}
		log.Info("Seeded bot account", zap.Int64("account_id", id))
	}
}
