package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/events"
)

func TestTapeRecordsCurveEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tape.csv")
	tape, err := OpenTape(path, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to open tape: %v", err)
	}

	ev := &events.CurveEvent{
		BaseEvent: events.NewBaseEvent(events.CurveSell, time.Now()),
		CurveID:   common.HexToAddress("0xc0"),
		Sequence:  7,
		AmountIn:  uint256.NewInt(42),
	}
	if err := tape.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Failed to record event: %v", err)
	}
	if err := tape.Handle(context.Background(), events.NewBaseEvent("other", time.Now())); err != nil {
		t.Fatalf("Foreign events must be ignored: %v", err)
	}
	if tape.Records() != 1 {
		t.Errorf("Expected 1 record, got %d", tape.Records())
	}
	if err := tape.Close(); err != nil {
		t.Fatalf("Failed to close tape: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open tape file: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse tape: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected header plus one row, got %d", len(rows))
	}
	if rows[1][2] != "7" || rows[1][4] != "sell" || rows[1][6] != "42" {
		t.Errorf("Unexpected row %v", rows[1])
	}
}

func TestTapeContinuesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tape.csv")
	ev := &events.CurveEvent{
		BaseEvent: events.NewBaseEvent(events.CurveBuy, time.Now()),
		CurveID:   common.HexToAddress("0xc0"),
	}

	for run := 0; run < 2; run++ {
		tape, err := OpenTape(path, 10*time.Millisecond, zap.NewNop())
		if err != nil {
			t.Fatalf("Failed to open tape (run %d): %v", run, err)
		}
		if err := tape.Handle(context.Background(), ev); err != nil {
			t.Fatalf("Failed to record event: %v", err)
		}
		if err := tape.Close(); err != nil {
			t.Fatalf("Failed to close tape: %v", err)
		}
		if err := tape.Close(); err != nil {
			t.Errorf("Second close should return the first result, got %v", err)
		}
		if err := tape.Handle(context.Background(), ev); err == nil {
			t.Error("Expected an error writing to a closed tape")
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read tape: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse tape: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected one header and two rows, got %d", len(rows))
	}
	if rows[0][0] != "event_id" || rows[1][0] == "event_id" || rows[2][0] == "event_id" {
		t.Errorf("Header must appear once: %v", rows)
	}
}
