package idhash

import (
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"backtest-lab/internal/domain"
)

func testRequest() domain.BackTestRequest {
	return domain.BackTestRequest{
		ID:   "req-1",
		Name: "cross",
		Conditions: []domain.StrategyCondition{
			{Role: domain.RoleEntry, Condition: domain.ConditionConfig{
				Type:       "ma_crossover",
				Parameters: map[string]any{"fast": 5, "slow": 20},
			}},
		},
	}
}

func TestDatasetID_Deterministic(t *testing.T) {
	a := DatasetID([]byte("timestamp,open\n"))
	b := DatasetID([]byte("timestamp,open\n"))
	c := DatasetID([]byte("timestamp,close\n"))

	if a != b {
		t.Errorf("expected same id, got %s and %s", a, b)
	}
	if a == c {
		t.Error("expected different ids for different data")
	}

	raw, err := base58.Decode(a)
	if err != nil {
		t.Fatalf("decode base58: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("expected 32-byte digest, got %d", len(raw))
	}
}

func TestDatasetIDFromBars(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := []domain.Bar{{Timestamp: ts, Close: 10, Volume: 100}}

	a := DatasetIDFromBars("IBM", bars)
	if a != DatasetIDFromBars("IBM", bars) {
		t.Error("expected deterministic id")
	}
	if a == DatasetIDFromBars("MSFT", bars) {
		t.Error("expected symbol to change the id")
	}

	changed := []domain.Bar{{Timestamp: ts, Close: 10.01, Volume: 100}}
	if a == DatasetIDFromBars("IBM", changed) {
		t.Error("expected bar values to change the id")
	}
}

func TestStrategyID_ParameterOrder(t *testing.T) {
	a := []domain.StrategyCondition{{Role: domain.RoleEntry, Condition: domain.ConditionConfig{
		Type: "threshold", Parameters: map[string]any{"op": "gt", "value": 1.0, "field": "close"},
	}}}
	b := []domain.StrategyCondition{{Role: domain.RoleEntry, Condition: domain.ConditionConfig{
		Type: "threshold", Parameters: map[string]any{"field": "close", "value": 1.0, "op": "gt"},
	}}}

	if StrategyID(a) != StrategyID(b) {
		t.Error("expected parameter order not to matter")
	}
	if len(StrategyID(a)) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(StrategyID(a)))
	}
}

func TestRequestFingerprint(t *testing.T) {
	base := testRequest()

	renamed := testRequest()
	renamed.ID = "req-2"
	renamed.Name = "other"
	if RequestFingerprint(base) != RequestFingerprint(renamed) {
		t.Error("expected id and name not to affect the fingerprint")
	}

	explicit := testRequest()
	explicit.Sizing = domain.Sizing{Mode: domain.SizingUnits, Value: 1}
	explicit.FillPolicy = domain.FillClose
	explicit.EndOfData = domain.EndOfDataForceClose
	if RequestFingerprint(base) != RequestFingerprint(explicit) {
		t.Error("expected defaults to be applied before hashing")
	}

	sized := testRequest()
	sized.Sizing.Value = 10
	if RequestFingerprint(base) == RequestFingerprint(sized) {
		t.Error("expected sizing to change the fingerprint")
	}
}

func TestComputeResultID(t *testing.T) {
	a := ComputeResultID("ds", "req-1", "fp")
	if a != ComputeResultID("ds", "req-1", "fp") {
		t.Error("expected deterministic id")
	}
	if a == ComputeResultID("ds", "req-2", "fp") {
		t.Error("expected request id to change the result id")
	}
}
