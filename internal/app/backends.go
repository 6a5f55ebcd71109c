package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/shaiso/Outpost/internal/archive"
	"github.com/shaiso/Outpost/internal/config"
	"github.com/shaiso/Outpost/internal/executor"
	"github.com/shaiso/Outpost/internal/kafka"
	"github.com/shaiso/Outpost/internal/mq"
	"github.com/shaiso/Outpost/internal/repo"
	"github.com/shaiso/Outpost/internal/statestore"
	"github.com/shaiso/Outpost/internal/worker"
)

// State — хранилище статусов и, для Postgres, журнал завершений.
type State struct {
	Store   statestore.Store
	History *repo.HistoryRepo
}

// OpenState открывает хранилище статусов по state.backend.
func OpenState(ctx context.Context, cfg *config.Config, res *Resources) (*State, error) {
	switch cfg.State.Backend {
	case config.StateMemory:
		return &State{Store: statestore.NewMemoryStore()}, nil

	case config.StateRedis:
		client := statestore.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		res.Add("redis", client.Close)
		return &State{Store: statestore.NewRedisStore(client, cfg.StateNamespace(), cfg.State.TTL)}, nil

	case config.StatePostgres:
		pool, err := repo.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		res.Add("postgres", func() error {
			pool.Close()
			return nil
		})
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		return &State{
			Store:   repo.NewStateRepo(pool),
			History: repo.NewHistoryRepo(pool),
		}, nil

	case config.StateDynamoDB:
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		client := statestore.NewDynamoClient(awsCfg, cfg.DynamoDB.Endpoint)
		return &State{Store: statestore.NewDynamoStore(client, cfg.StateTable(), cfg.State.TTL)}, nil
	}

	return nil, fmt.Errorf("%w: state.backend %q", config.ErrInvalidConfig, cfg.State.Backend)
}

// OpenSpawner открывает транспорт dispatch для executor'а.
func OpenSpawner(ctx context.Context, cfg *config.Config, res *Resources, logger *slog.Logger) (executor.Spawner, error) {
	switch cfg.Dispatch.Transport {
	case config.TransportRabbitMQ:
		conn, err := openRabbit(ctx, cfg, res, logger)
		if err != nil {
			return nil, err
		}
		topology := mq.NewTopology(cfg.DispatchQueue())
		if err := topology.Setup(conn); err != nil {
			return nil, fmt.Errorf("setup topology: %w", err)
		}
		return mq.NewSpawner(mq.NewPublisher(conn, logger), topology), nil

	case config.TransportKafka:
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		res.Add("kafka producer", producer.Close)
		return kafka.NewSpawner(producer, cfg.DispatchQueue()), nil
	}

	return nil, fmt.Errorf("%w: dispatch.transport %q", config.ErrInvalidConfig, cfg.Dispatch.Transport)
}

// OpenSources открывает worker.concurrency consumers очереди dispatch.
func OpenSources(ctx context.Context, cfg *config.Config, res *Resources, logger *slog.Logger) ([]worker.Source, error) {
	n := cfg.Worker.Concurrency
	sources := make([]worker.Source, 0, n)

	switch cfg.Dispatch.Transport {
	case config.TransportRabbitMQ:
		conn, err := openRabbit(ctx, cfg, res, logger)
		if err != nil {
			return nil, err
		}
		topology := mq.NewTopology(cfg.DispatchQueue())
		if err := topology.Setup(conn); err != nil {
			return nil, fmt.Errorf("setup topology: %w", err)
		}
		for range n {
			sources = append(sources, worker.NewRabbitSource(conn, topology, cfg.RabbitMQ.Prefetch, logger))
		}

	case config.TransportKafka:
		dlq := kafka.NewProducer(cfg.Kafka.Brokers)
		res.Add("kafka dlq producer", dlq.Close)
		for range n {
			consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.DispatchQueue(), cfg.Kafka.Group, dlq, logger)
			res.Add("kafka consumer", consumer.Close)
			sources = append(sources, worker.NewKafkaSource(consumer))
		}

	default:
		return nil, fmt.Errorf("%w: dispatch.transport %q", config.ErrInvalidConfig, cfg.Dispatch.Transport)
	}

	return sources, nil
}

func openRabbit(ctx context.Context, cfg *config.Config, res *Resources, logger *slog.Logger) (*mq.Connection, error) {
	conn, err := mq.NewConnection(ctx, cfg.RabbitMQ.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	res.Add("rabbitmq", conn.Close)
	return conn, nil
}

// OpenArchive создаёт архив логов по archive.backend.
func OpenArchive(ctx context.Context, cfg *config.Config) (archive.Archive, error) {
	switch cfg.Archive.Backend {
	case config.ArchiveFile:
		return archive.NewFileArchive(cfg.Archive.Dir), nil

	case config.ArchiveS3:
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		client := archive.NewS3Client(awsCfg, cfg.Archive.Endpoint)
		return archive.NewS3Archive(client, cfg.LogsBucket(), ""), nil
	}

	return nil, fmt.Errorf("%w: archive.backend %q", config.ErrInvalidConfig, cfg.Archive.Backend)
}

func loadAWS(ctx context.Context) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}
