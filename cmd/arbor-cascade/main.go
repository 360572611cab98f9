// arbor-cascade is the AWS Lambda function attached to the items table's
// DynamoDB stream. It removes the live children of every removed item.
//
// Table names and sharding come from the environment:
//
//	ARBOR_ITEMS_TABLE, ARBOR_CHILDREN_TABLE, ARBOR_COUNTERS_TABLE,
//	ARBOR_NUM_SHARDS, ARBOR_TOMBSTONE_RETENTION (e.g. "720h")
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := configFromEnv()
	if err != nil {
		return err
	}

	client, err := store.NewClient(context.Background(), os.Getenv("AWS_REGION"), "")
	if err != nil {
		return err
	}

	handler := stream.NewHandler(store.New(client, cfg), logger)
	lambda.Start(handler.HandleCascadeRemove)
	return nil
}

func configFromEnv() (store.Config, error) {
	cfg := store.DefaultConfig()
	if v := os.Getenv("ARBOR_ITEMS_TABLE"); v != "" {
		cfg.ItemsTable = v
	}
	if v := os.Getenv("ARBOR_CHILDREN_TABLE"); v != "" {
		cfg.ChildrenTable = v
	}
	if v := os.Getenv("ARBOR_COUNTERS_TABLE"); v != "" {
		cfg.CountersTable = v
	}
	if v := os.Getenv("ARBOR_NUM_SHARDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return store.Config{}, fmt.Errorf("ARBOR_NUM_SHARDS: %w", err)
		}
		cfg.NumShards = n
	}
	if v := os.Getenv("ARBOR_TOMBSTONE_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return store.Config{}, fmt.Errorf("ARBOR_TOMBSTONE_RETENTION: %w", err)
		}
		cfg.TombstoneRetention = d
	}
	return cfg, nil
}
