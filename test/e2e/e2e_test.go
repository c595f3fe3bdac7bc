//go:build e2e

// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finlit-workers/internal/common/config"
	"finlit-workers/internal/common/database"
	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/models"
	"finlit-workers/internal/repository"
	retrievecontext "finlit-workers/internal/workers/story/retrieve-context"
)

var (
	zeebeClient zbc.Client
	cfg         *config.Config
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestMain(m *testing.M) {
	// No model calls are made here; the key only satisfies validation.
	if os.Getenv("GENAI_API_KEY") == "" {
		_ = os.Setenv("GENAI_API_KEY", "e2e")
	}

	var err error
	cfg, err = config.LoadFromFile("../../configs/config.yaml")
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}

	// Local docker-compose services.
	cfg.Database.Postgres.Host = envOr("E2E_POSTGRES_HOST", "localhost")
	cfg.Database.Postgres.User = envOr("DB_USER", "postgres")
	cfg.Database.Postgres.Password = envOr("DB_PASSWORD", "postgres")
	cfg.Database.Redis.Address = envOr("E2E_REDIS_ADDR", "localhost:6379")
	cfg.Database.Elasticsearch.Addresses = []string{envOr("E2E_ES_URL", "http://localhost:9200")}
	cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]

	zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         envOr("ZEEBE_ADDRESS", "localhost:26500"),
		UsePlaintextConnection: true,
	})
	if err != nil {
		panic(fmt.Sprintf("connect to zeebe: %v", err))
	}

	code := m.Run()

	zeebeClient.Close()
	os.Exit(code)
}

func TestServicesReachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "postgres client")
	defer pg.Close()
	assert.NoError(t, pg.Ping(ctx), "postgres ping")

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err, "redis client")
	defer rdb.Close()
	assert.NoError(t, rdb.Ping(ctx), "redis ping")

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	require.NoError(t, err, "elasticsearch client")
	assert.NoError(t, es.Ping(ctx), "elasticsearch ping")

	_, err = zeebeClient.NewTopologyCommand().Send(ctx)
	assert.NoError(t, err, "zeebe topology")
}

func TestBookLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	defer pg.Close()

	books := repository.NewBookRepository(pg.GetDB())
	require.NoError(t, books.EnsureSchema(ctx))

	userID := "e2e-" + uuid.NewString()
	next := 2
	story := &models.Story{
		UserID:       userID,
		ChildID:      "adi_123",
		Title:        "Celengan Ayam",
		Themes:       []string{"menabung"},
		Language:     models.LanguageIndonesian,
		Status:       models.StoryInProgress,
		AgeGroup:     "5",
		CurrentScene: 1,
		Scenes: []models.Scene{
			{SceneID: 1, Type: models.SceneNarrative, Content: "Dodi menemukan celengan ayam.", NextScene: &next},
			{SceneID: 2, Type: models.SceneEnding, Content: "Dodi menabung setiap hari.", LessonLearned: "Menabung sedikit demi sedikit."},
		},
	}
	story.StoryFlow = story.DeriveFlow()

	id, err := books.Create(ctx, story)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := books.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, userID, loaded.UserID)
	assert.Len(t, loaded.Scenes, 2)

	cards, err := books.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Celengan Ayam", cards[0].Title)

	stale, err := books.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, loaded.Advance(1, "", time.Now()))
	require.NoError(t, loaded.Advance(2, "", time.Now()))
	require.NoError(t, books.UpdateProgress(ctx, loaded))

	require.NoError(t, stale.Advance(1, "", time.Now()))
	assert.ErrorIs(t, books.UpdateProgress(ctx, stale), repository.ErrProgressConflict)

	finished, err := books.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StoryFinished, finished.Status)
	assert.Equal(t, []int{1, 2}, finished.UserStory.VisitedScene)

	_, err = books.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrBookNotFound)
}

func TestRetrieveContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	require.NoError(t, err)
	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err)
	defer rdb.Close()

	index := "finlit-e2e-" + strings.ToLower(uuid.NewString()[:8])
	defer func() {
		if res, err := es.Client.Indices.Delete([]string{index}); err == nil {
			res.Body.Close()
		}
	}()

	docs := map[string]string{
		"doc-1": `{"title":"Menabung di celengan","content":"Anak belajar menabung uang jajan di celengan.","min_age":4,"max_age":8,"content_type":"financial","source":"modul-1"}`,
		"doc-2": `{"title":"Cerita pasar","content":"Di pasar tradisional anak belajar menawar dan menabung.","min_age":9,"max_age":12,"content_type":"cultural","source":"modul-2"}`,
	}
	for id, body := range docs {
		res, err := es.Client.Index(index, strings.NewReader(body),
			es.Client.Index.WithContext(ctx),
			es.Client.Index.WithDocumentID(id),
			es.Client.Index.WithRefresh("true"),
		)
		require.NoError(t, err)
		require.False(t, res.IsError(), res.String())
		res.Body.Close()
	}

	rcCfg := retrievecontext.LoadConfig()
	rcCfg.Index = index
	rcCfg.MinScore = 0
	retriever := retrievecontext.NewHandler(rcCfg, es, rdb, logger.NewTestLogger(t))

	query := "menabung " + uuid.NewString()[:8]
	age := 6
	out, err := retriever.Execute(ctx, &retrievecontext.Input{Query: query, Age: &age})
	require.NoError(t, err)
	require.NotEmpty(t, out.Documents)
	assert.Equal(t, "doc-1", out.Documents[0].Document.ID)

	cached, err := rdb.Get(ctx, retrievecontext.CacheKey(rcCfg, query))
	require.NoError(t, err)
	assert.Contains(t, cached, "doc-1")
}
