package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jacentio/docmap/mapper"
	"github.com/jacentio/docmap/metrics"
	"github.com/jacentio/docmap/sequence"
	"github.com/jacentio/docmap/store"
	"github.com/jacentio/docmap/store/dynamo"
	"github.com/jacentio/docmap/store/memory"
	"github.com/jacentio/docmap/store/sqlite"
)

// OpenStore opens the configured backend. The returned close function
// releases any resources held by the store and is never nil.
func (c *Config) OpenStore(ctx context.Context) (store.Store, func() error, error) {
	noop := func() error { return nil }

	switch c.Store.Driver {
	case DriverMemory:
		return memory.New(), noop, nil

	case DriverSQLite:
		s, err := sqlite.Open(c.Store.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite: %w", err)
		}
		return s, s.Close, nil

	case DriverDynamoDB:
		client, err := c.dynamoClient(ctx)
		if err != nil {
			return nil, noop, err
		}
		return dynamo.New(client, c.DynamoConfig()), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown store driver %q", c.Store.Driver)
}

// DynamoConfig converts the DynamoDB section into a dynamo.Config.
func (c *Config) DynamoConfig() dynamo.Config {
	cfg := dynamo.DefaultConfig()
	cfg.TablePrefix = c.Store.DynamoDB.TablePrefix
	cfg.ScanSegments = c.Store.DynamoDB.ScanSegments
	if c.Store.DynamoDB.ConsistentRead != nil {
		cfg.ConsistentRead = *c.Store.DynamoDB.ConsistentRead
	}
	return cfg
}

func (c *Config) dynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Store.DynamoDB.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Store.DynamoDB.Region))
	}
	if c.Store.DynamoDB.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Store.DynamoDB.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := c.Store.DynamoDB.Endpoint
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Collector returns a metrics collector registered on reg, or nil when
// metrics are disabled. A nil reg uses the default Prometheus registerer.
func (c *Config) Collector(reg prometheus.Registerer) *metrics.Collector {
	if !c.Metrics.Enabled {
		return nil
	}
	if reg == nil {
		return metrics.New()
	}
	return metrics.NewWithRegistry(reg)
}

// NewManager wires a mapper.Manager over s using the sequence, logging and
// metrics sections.
func (c *Config) NewManager(s store.Store, logger zerolog.Logger, collector *metrics.Collector) *mapper.Manager {
	alloc := sequence.New(s,
		sequence.WithCollection(c.Sequence.Collection),
		sequence.WithMaxRetries(c.Sequence.MaxRetries),
		sequence.WithLogger(logger),
		sequence.WithMetrics(collector),
	)
	return mapper.NewManager(s,
		mapper.WithAllocator(alloc),
		mapper.WithLogger(logger),
		mapper.WithMetrics(collector),
	)
}
