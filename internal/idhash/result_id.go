package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"backtest-lab/internal/domain"
)

// StrategyID computes a deterministic strategy id from its role-tagged
// conditions. Map keys are sorted by encoding/json, so parameter order does
// not matter. Returns hex-encoded hash (64 characters).
func StrategyID(conditions []domain.StrategyCondition) string {
	data, err := json.Marshal(conditions)
	if err != nil {
		// Parameters hold only JSON-decodable values; fall back to %v.
		data = []byte(fmt.Sprintf("%v", conditions))
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// RequestFingerprint hashes everything in a request that affects the
// simulation outcome. ID and Name are excluded, so two requests that differ
// only in naming share a fingerprint.
func RequestFingerprint(req domain.BackTestRequest) string {
	req = req.WithDefaults()
	data := fmt.Sprintf("%s|%s|%g|%g|%g|%s|%s|%g",
		StrategyID(req.Conditions),
		req.Sizing.Mode,
		req.Sizing.Value,
		req.Risk.StopLossPct,
		req.Risk.TakeProfitPct,
		req.FillPolicy,
		req.EndOfData,
		req.InitialCapital,
	)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeResultID computes a deterministic result_id.
// Formula: SHA256(dataset_id|request_id|fingerprint)
func ComputeResultID(datasetID, requestID, fingerprint string) string {
	data := fmt.Sprintf("%s|%s|%s", datasetID, requestID, fingerprint)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
