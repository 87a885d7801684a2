package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/graphora-ai/graphora/internal/queue"
	"github.com/graphora-ai/graphora/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"

	"github.com/graphora-ai/graphora/pkg/ai"
	oai "github.com/graphora-ai/graphora/pkg/ai/ollama"
	gai "github.com/graphora-ai/graphora/pkg/ai/openai"
	"github.com/graphora-ai/graphora/pkg/chunker"
	"github.com/graphora-ai/graphora/pkg/ecc"
	"github.com/graphora-ai/graphora/pkg/embedstore"
	"github.com/graphora-ai/graphora/pkg/embedstore/pgvector"
	"github.com/graphora-ai/graphora/pkg/extractor"
	"github.com/graphora-ai/graphora/pkg/gdb"
	"github.com/graphora-ai/graphora/pkg/leaselock"
	"github.com/graphora-ai/graphora/pkg/logger"
	"github.com/graphora-ai/graphora/pkg/logger/console"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleBackend := console.NewConsoleBackend(console.ConsoleBackendParams{
		Debug: debug,
	})
	logger.Init(consoleBackend)

	// AI client
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.Client

	switch adapter {
	case "ollama":
		client, err := oai.NewClient(oai.NewClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			CompletionModel: util.GetEnv("AI_CHAT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvInt("AI_PARALLEL_REQ", 8)),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewClient(gai.NewClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			CompletionModel: util.GetEnv("AI_CHAT_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvInt("AI_PARALLEL_REQ", 8)),
		})
	}

	// chunking strategy is resolved once at startup
	chk, err := chunker.New(chunker.Config{
		Type:        util.GetEnvString("CHUNKER_TYPE", "character"),
		ChunkSize:   util.GetEnvInt("CHUNK_SIZE", 1024),
		OverlapSize: util.GetEnvInt("CHUNK_OVERLAP", 0),
		Pattern:     util.GetEnv("CHUNKER_PATTERN"),
	})
	if err != nil {
		logger.Fatal("Could not create chunker", "err", err)
	}

	ext := extractor.NewLLMExtractor(extractor.LLMExtractorParams{
		Client:                   aiClient,
		AllowedEntityTypes:       splitEnvList("EXTRACT_ENTITY_TYPES"),
		AllowedRelationshipTypes: splitEnvList("EXTRACT_RELATIONSHIP_TYPES"),
		StrictMode:               util.GetEnvBool("EXTRACT_STRICT", false),
	})

	// pgvector pool is shared across graphs; only opened when some graph
	// needs the external embedding store
	var pgPool *pgxpool.Pool
	openPgPool := func() (*pgxpool.Pool, error) {
		if pgPool != nil {
			return pgPool, nil
		}
		databaseURL := util.GetEnv("DATABASE_URL")
		if databaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL not set, required for the pgvector embedding store")
		}
		if err := pgvector.Migrate(databaseURL); err != nil {
			return nil, err
		}
		pool, err := pgvector.NewPool(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		pgPool = pool
		return pgPool, nil
	}
	defer func() {
		if pgPool != nil {
			pgPool.Close()
		}
	}()

	// With a database configured, a per-graph lease keeps two workers from
	// running the same graph's loop. Without one, deployments are expected
	// to run a single worker.
	var (
		leaseMu sync.Mutex
		leases  = map[string]*leaselock.Lease{}
	)
	acquireGraphLease := func(graphName string) error {
		if util.GetEnv("DATABASE_URL") == "" {
			return nil
		}
		pool, err := openPgPool()
		if err != nil {
			return err
		}
		leaseMu.Lock()
		defer leaseMu.Unlock()
		if _, held := leases[graphName]; held {
			return nil
		}
		lease, err := leaselock.New(pool).Acquire(ctx, "ecc:"+graphName, leaselock.Options{
			TTL: time.Duration(util.GetEnvInt("ECC_LEASE_TTL_SEC", 300)) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("acquiring lease for %s: %w", graphName, err)
		}
		leases[graphName] = lease
		return nil
	}
	releaseGraphLeases := func() {
		leaseMu.Lock()
		defer leaseMu.Unlock()
		for name, lease := range leases {
			if err := lease.Release(context.Background()); err != nil {
				logger.Warn("Failed to release graph lease", "graph", name, "err", err)
			}
			delete(leases, name)
		}
	}
	defer releaseGraphLeases()

	factory := func(graphName string) (ecc.Config, ecc.Dependencies, error) {
		if err := acquireGraphLease(graphName); err != nil {
			return ecc.Config{}, ecc.Dependencies{}, err
		}

		conn := gdb.NewRESTConnection(gdb.RESTConnectionParams{
			Host:      util.GetEnv("GRAPH_HOST"),
			GraphName: graphName,
			Username:  util.GetEnv("GRAPH_USERNAME"),
			Password:  util.GetEnv("GRAPH_PASSWORD"),
			APIToken:  util.GetEnv("GRAPH_API_TOKEN"),
			Timeout:   time.Duration(util.GetEnvInt("GRAPH_TIMEOUT_SEC", 30)) * time.Second,
		})

		store, native, err := selectStore(ctx, conn, openPgPool)
		if err != nil {
			return ecc.Config{}, ecc.Dependencies{}, err
		}

		cfg := ecc.Config{
			GraphName: graphName,

			ProcessInterval: time.Duration(util.GetEnvInt("ECC_PROCESS_INTERVAL_SEC", 30)) * time.Second,
			CleanupInterval: time.Duration(util.GetEnvInt("ECC_CLEANUP_INTERVAL_SEC", 5)) * time.Second,

			TTLBatches: util.GetEnvInt("ECC_TTL_BATCHES", 5),
			BatchSize:  util.GetEnvInt("ECC_BATCH_SIZE", 500),

			GraphConcurrency: int64(util.GetEnvInt("ECC_GRAPH_CONCURRENCY", 2)),
			ModelConcurrency: int64(util.GetEnvInt("ECC_MODEL_CONCURRENCY", 8)),
			ChunkWorkers:     util.GetEnvInt("ECC_CHUNK_WORKERS", 4),
			BatchWorkers:     util.GetEnvInt("ECC_BATCH_WORKERS", 4),

			MaxCommunityLevels:  util.GetEnvInt("ECC_COMMUNITY_LEVELS", 3),
			TopK:                util.GetEnvInt("ECC_RESOLVE_TOPK", 5),
			SimilarityThreshold: util.GetEnvFloat("ECC_SIMILARITY_THRESHOLD", 0.9),
			EditDistanceRatio:   util.GetEnvFloat("ECC_EDIT_DISTANCE_RATIO", 0.75),

			RequireNativeVector: native,
		}

		deps := ecc.Dependencies{
			Conn:      conn,
			AI:        aiClient,
			Chunker:   chk,
			Extractor: ext,
			Store:     store,
		}
		return cfg, deps, nil
	}

	// RabbitMQ
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.RunQueue,
		"ecc_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.RunQueue, "err", err)
	}

	// optional scheduled maintenance passes for every running checker
	var scheduler *cron.Cron
	if spec := util.GetEnv("ECC_MAINTENANCE_CRON"); spec != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(spec, func() {
			for _, c := range ecc.Checkers() {
				logger.Info("Scheduled maintenance pass", "graph", c.GraphName())
				if err := c.Tick(ctx); err != nil {
					logger.Warn("Maintenance pass failed", "graph", c.GraphName(), "err", err)
				}
			}
		})
		if err != nil {
			logger.Fatal("Invalid maintenance cron spec", "spec", spec, "err", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	logger.Info("Listening for run requests", "queue", queue.RunQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Info("Message channel closed")
					return
				}
				startTime := time.Now()
				logger.Info("Received run request")

				processingErr := queue.ProcessRunMessage(ctx, factory, string(msg.Body))
				if processingErr != nil {
					logger.Error("Error processing run request", "err", processingErr)
					handleProcessingError(consumerCh, msg, queue.RunQueue)
				} else {
					if err := msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
				}

				metrics := aiClient.GetMetrics()
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration_ms", metrics.DurationMs,
				)
				aiClient.ResetMetrics()
				logger.Info("Run request handled", "duration", time.Since(startTime).Round(time.Millisecond))
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, draining checkers")
	for _, c := range ecc.Checkers() {
		c.Stop()
	}
	releaseGraphLeases()
	logger.Info("All checkers stopped, exiting")
}

// selectStore picks the embedding store for one graph: native when the
// graph supports the vector feature, pgvector otherwise. EMBED_STORE
// forces one of "native" or "pgvector".
func selectStore(
	ctx context.Context,
	conn gdb.Connection,
	openPgPool func() (*pgxpool.Pool, error),
) (embedstore.Store, bool, error) {
	choice := util.GetEnvString("EMBED_STORE", "")
	if choice == "" {
		verStr, err := conn.GetVer(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("probing graph version: %w", err)
		}
		ver, err := gdb.ParseVersion(verStr)
		if err != nil {
			return nil, false, err
		}
		if ver.SupportsNativeVector() {
			choice = "native"
		} else {
			choice = "pgvector"
		}
	}

	switch choice {
	case "native":
		return embedstore.NewGraphStore(conn), true, nil
	case "pgvector":
		pool, err := openPgPool()
		if err != nil {
			return nil, false, err
		}
		counter := func(ctx context.Context, vertexType string) (int, error) {
			res, err := conn.RunInstalledQuery(ctx, "vertex_count", map[string]any{
				"v_type": vertexType,
			})
			if err != nil {
				return 0, err
			}
			if len(res) == 0 {
				return 0, fmt.Errorf("empty vertex_count result")
			}
			switch v := res[0]["count"].(type) {
			case int:
				return v, nil
			case float64:
				return int(v), nil
			default:
				return 0, fmt.Errorf("vertex_count result missing count")
			}
		}
		return pgvector.NewStore(pool, conn.GraphName(), counter), false, nil
	default:
		return nil, false, fmt.Errorf("unknown embedding store %q", choice)
	}
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// If message has been retried 10 times, send to dead-letter
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

func splitEnvList(key string) []string {
	raw := util.GetEnv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
