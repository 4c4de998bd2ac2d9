package store

import (
	"fmt"
	"time"

	"github.com/Storemind-AI/trustcore/pkg/canonicalize"
	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// chainGenesis anchors the first entry of the execution hash chain.
const chainGenesis = "genesis"

// sealExecution fills rec's PayloadHash, PrevHash and EntryHash. EntryHash
// covers the canonicalized identity of the record plus the previous hash,
// so rewriting any persisted row breaks verification from that point on.
func sealExecution(rec *contracts.ExecutionRecord, prevHash string) error {
	if prevHash == "" {
		prevHash = chainGenesis
	}
	payloadHash, err := canonicalize.CanonicalHash(rec.Payload)
	if err != nil {
		return fmt.Errorf("seal execution %s: %w", rec.ID, err)
	}
	rec.PayloadHash = payloadHash
	rec.PrevHash = prevHash

	entryHash, err := entryHash(rec)
	if err != nil {
		return fmt.Errorf("seal execution %s: %w", rec.ID, err)
	}
	rec.EntryHash = entryHash
	return nil
}

func entryHash(rec *contracts.ExecutionRecord) (string, error) {
	hashable := struct {
		ID          string `json:"id"`
		CommandType string `json:"command_type"`
		ActorID     string `json:"actor_id"`
		ActorRole   string `json:"actor_role"`
		StoreID     string `json:"store_id"`
		Status      string `json:"status"`
		Level       string `json:"level"`
		PayloadHash string `json:"payload_hash"`
		PrevHash    string `json:"prev_hash"`
		CreatedAt   string `json:"created_at"`
	}{
		ID:          rec.ID,
		CommandType: rec.CommandType,
		ActorID:     rec.ActorID,
		ActorRole:   rec.ActorRole,
		StoreID:     rec.StoreID,
		Status:      rec.Status,
		Level:       string(rec.Level),
		PayloadHash: rec.PayloadHash,
		PrevHash:    rec.PrevHash,
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	return canonicalize.CanonicalHash(hashable)
}

// verifyChain walks records in append order and recomputes each hash.
func verifyChain(records []*contracts.ExecutionRecord) error {
	expectedPrev := chainGenesis
	for i, rec := range records {
		if rec.PrevHash != expectedPrev {
			return fmt.Errorf("execution chain broken at %d (%s): prev_hash %s, expected %s",
				i, rec.ID, rec.PrevHash, expectedPrev)
		}
		computed, err := entryHash(rec)
		if err != nil {
			return fmt.Errorf("execution chain at %d (%s): %w", i, rec.ID, err)
		}
		if computed != rec.EntryHash {
			return fmt.Errorf("execution chain broken at %d (%s): entry hash mismatch", i, rec.ID)
		}
		expectedPrev = rec.EntryHash
	}
	return nil
}
