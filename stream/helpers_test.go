package stream

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

// --- getStringAttr Tests ---

func TestGetStringAttr(t *testing.T) {
	tests := []struct {
		name     string
		image    map[string]events.DynamoDBAttributeValue
		expected string
	}{
		{"existing string", map[string]events.DynamoDBAttributeValue{"id": events.NewStringAttribute("a1")}, "a1"},
		{"missing key", map[string]events.DynamoDBAttributeValue{"other": events.NewStringAttribute("x")}, ""},
		{"empty image", map[string]events.DynamoDBAttributeValue{}, ""},
		{"nil image", nil, ""},
		{"empty value", map[string]events.DynamoDBAttributeValue{"id": events.NewStringAttribute("")}, ""},
		{"unicode", map[string]events.DynamoDBAttributeValue{"id": events.NewStringAttribute("日本語テスト")}, "日本語テスト"},
		{"special characters", map[string]events.DynamoDBAttributeValue{"id": events.NewStringAttribute("4:acme|a#00")}, "4:acme|a#00"},
		{"number attribute", map[string]events.DynamoDBAttributeValue{"id": events.NewNumberAttribute("12")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getStringAttr(tt.image, "id")
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

// --- getNumberAttr Tests ---

func TestGetNumberAttr(t *testing.T) {
	tests := []struct {
		name     string
		image    map[string]events.DynamoDBAttributeValue
		expected int64
	}{
		{"valid number", map[string]events.DynamoDBAttributeValue{"seq": events.NewNumberAttribute("1234567890")}, 1234567890},
		{"zero", map[string]events.DynamoDBAttributeValue{"seq": events.NewNumberAttribute("0")}, 0},
		{"negative", map[string]events.DynamoDBAttributeValue{"seq": events.NewNumberAttribute("-100")}, -100},
		{"max int64", map[string]events.DynamoDBAttributeValue{"seq": events.NewNumberAttribute("9223372036854775807")}, 9223372036854775807},
		{"unparseable", map[string]events.DynamoDBAttributeValue{"seq": events.NewNumberAttribute("1.5")}, 0},
		{"missing key", map[string]events.DynamoDBAttributeValue{"other": events.NewNumberAttribute("5")}, 0},
		{"empty image", map[string]events.DynamoDBAttributeValue{}, 0},
		{"nil image", nil, 0},
		{"string attribute", map[string]events.DynamoDBAttributeValue{"seq": events.NewStringAttribute("12345")}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getNumberAttr(tt.image, "seq")
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

// --- newlyRemoved Tests ---

func TestNewlyRemoved(t *testing.T) {
	live := map[string]events.DynamoDBAttributeValue{
		"id":  events.NewStringAttribute("a"),
		"seq": events.NewNumberAttribute("3"),
	}
	removed := map[string]events.DynamoDBAttributeValue{
		"id":         events.NewStringAttribute("a"),
		"seq":        events.NewNumberAttribute("4"),
		"removed_at": events.NewNumberAttribute("1700000000"),
	}

	tests := []struct {
		name      string
		eventName string
		oldImage  map[string]events.DynamoDBAttributeValue
		newImage  map[string]events.DynamoDBAttributeValue
		expected  bool
	}{
		{"live to removed", "MODIFY", live, removed, true},
		{"live to live", "MODIFY", live, live, false},
		{"removed to removed", "MODIFY", removed, removed, false},
		{"removed to live", "MODIFY", removed, live, false},
		{"insert live", "INSERT", nil, live, false},
		{"insert removed", "INSERT", nil, removed, true},
		{"ttl expiry", "REMOVE", removed, nil, false},
		{"unknown", "UNKNOWN", live, removed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := events.DynamoDBEventRecord{
				EventName: tt.eventName,
				Change: events.DynamoDBStreamRecord{
					OldImage: tt.oldImage,
					NewImage: tt.newImage,
				},
			}
			if got := newlyRemoved(record); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// --- processRecord Logic Tests ---

func TestProcessRecord_SkipsTombstoneWithoutTenant(t *testing.T) {
	h := NewHandler(nil, nil)

	record := events.DynamoDBEventRecord{
		EventName: "MODIFY",
		Change: events.DynamoDBStreamRecord{
			OldImage: map[string]events.DynamoDBAttributeValue{
				"id": events.NewStringAttribute("a"),
			},
			NewImage: map[string]events.DynamoDBAttributeValue{
				"id":         events.NewStringAttribute("a"),
				"removed_at": events.NewNumberAttribute("1700000000"),
			},
		},
	}

	// A nil store would panic if the record were not skipped.
	err := h.processRecord(context.Background(), record)
	if err != nil {
		t.Errorf("expected no error for tombstone without tenant, got %v", err)
	}
}

// --- Benchmark Tests ---

func BenchmarkGetStringAttr(b *testing.B) {
	image := map[string]events.DynamoDBAttributeValue{
		"id": events.NewStringAttribute("12345678-1234-1234-1234-123456789012"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		getStringAttr(image, "id")
	}
}

func BenchmarkGetNumberAttr(b *testing.B) {
	image := map[string]events.DynamoDBAttributeValue{
		"removed_at": events.NewNumberAttribute("1704067200"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		getNumberAttr(image, "removed_at")
	}
}
