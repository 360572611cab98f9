// Package stream provides DynamoDB Streams handlers for cascade operations.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/arbor/store"
)

// Remover is the part of the item store the cascade needs.
// *store.Store implements it.
type Remover interface {
	Children(ctx context.Context, tenant, parentID string) ([]store.Child, error)
	RemoveLive(ctx context.Context, tenant, id string) error
}

var _ Remover = (*store.Store)(nil)

// Handler processes DynamoDB stream events for cascade removals.
type Handler struct {
	store  Remover
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s Remover, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// HandleCascadeRemove processes items-table stream events and removes the
// live children of every newly removed item. Children removed here reach
// the stream in turn, so whole subtrees are removed level by level.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleCascadeRemove(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if !newlyRemoved(record) {
		return nil
	}

	tenant := getStringAttr(record.Change.NewImage, "tenant")
	id := getStringAttr(record.Change.NewImage, "id")
	if tenant == "" || id == "" {
		h.logger.Warn("skipping tombstone without tenant or id",
			"eventID", record.EventID,
		)
		return nil
	}

	h.logger.Info("processing cascade remove",
		"tenant", tenant,
		"id", id,
		"seq", getNumberAttr(record.Change.NewImage, "seq"),
	)

	// Removed children are listed too; they are skipped.
	children, err := h.store.Children(ctx, tenant, id)
	if err != nil {
		return fmt.Errorf("query children: %w", err)
	}

	var errs []error
	removed := 0
	for _, child := range children {
		if child.Removed {
			continue
		}
		if err := h.store.RemoveLive(ctx, tenant, child.ID); err != nil {
			h.logger.Warn("failed to remove child",
				"tenant", tenant,
				"child", child.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("remove %q: %w", child.ID, err))
			continue
		}
		removed++
	}

	h.logger.Info("cascade remove completed",
		"tenant", tenant,
		"id", id,
		"childCount", len(children),
		"childrenRemoved", removed,
	)

	// Failed children fail the record so Lambda retries it; RemoveLive
	// skips the ones already removed.
	return errors.Join(errs...)
}

// newlyRemoved reports whether record turns a live item into a tombstone.
func newlyRemoved(record events.DynamoDBEventRecord) bool {
	switch record.EventName {
	case "MODIFY", "INSERT":
	default:
		return false
	}
	return getNumberAttr(record.Change.OldImage, "removed_at") == 0 &&
		getNumberAttr(record.Change.NewImage, "removed_at") != 0
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}
