package journal

import (
	"testing"
	"time"

	"modbus-mqtt-gateway/pkg/logger"
)

func TestAppendAndCleanupByMaxRows(t *testing.T) {
	j, err := Open(":memory:", Config{MaxRows: 3, CleanupEvery: 1}, logger.GlobalLogger{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	for i := 0; i < 5; i++ {
		j.Append(Record{Topic: "t", Object: "o", Bus: "line1", UnitID: 1, Param: "p", Code: 0, TS: time.Now()})
	}

	var count int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM telemetry_events`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count > 3 {
		t.Errorf("expected at most 3 rows retained, got %d", count)
	}
}

func TestAppendNullValueForErrorRecords(t *testing.T) {
	j, err := Open(":memory:", Config{CleanupEvery: 100}, logger.GlobalLogger{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	j.Append(Record{Topic: "t", Object: "o", Bus: "line1", UnitID: 1, Param: "p", Value: nil, Code: 1, Message: "TIMEOUT", TS: time.Now()})

	var value *string
	if err := j.db.QueryRow(`SELECT value FROM telemetry_events LIMIT 1`).Scan(&value); err != nil {
		t.Fatalf("query: %v", err)
	}
	if value != nil {
		t.Errorf("expected NULL value for an error record, got %v", *value)
	}
}
