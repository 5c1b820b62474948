package transaction

import (
	"testing"

	fuzz "github.com/google/gofuzz"

	"github.com/globepay/meshpay/errors"
	"github.com/globepay/meshpay/jsonx"
)

func TestPayloadRoundTrip(t *testing.T) {
	tx := &OfflineTransaction{
		ID:        "id-1",
		From:      "alice",
		To:        "bob",
		Amount:    "1000",
		Nonce:     7,
		Timestamp: 1700000000000,
		Signature: "sig",
		Hash:      "hash",
		Metadata:  "coffee",
	}

	data, err := SerializePayload(tx)
	if err != nil {
		t.Fatalf("SerializePayload failed: %v", err)
	}

	var envelope ExchangePayload
	if err := jsonx.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("Payload is not valid JSON: %v", err)
	}
	if envelope.Type != PayloadType || envelope.Version != PayloadVersion {
		t.Fatalf("Envelope missing type/version: %+v", envelope)
	}

	got, err := DeserializePayload(data)
	if err != nil {
		t.Fatalf("DeserializePayload failed: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("Imported transaction should come back PENDING, got %s", got.Status)
	}
	if got.ID != tx.ID || got.From != tx.From || got.To != tx.To ||
		got.Amount != tx.Amount || got.Nonce != tx.Nonce ||
		got.Timestamp != tx.Timestamp || got.Signature != tx.Signature ||
		got.Hash != tx.Hash || got.Metadata != tx.Metadata {
		t.Fatalf("Round trip lost fields: %+v != %+v", got, tx)
	}
}

func TestPayloadRoundTripFuzzed(t *testing.T) {
	f := fuzz.New().NilChance(0)
	for i := 0; i < 50; i++ {
		var tx OfflineTransaction
		f.Fuzz(&tx)

		data, err := SerializePayload(&tx)
		if err != nil {
			t.Fatalf("SerializePayload failed on fuzzed input: %v", err)
		}
		got, err := DeserializePayload(data)
		if err != nil {
			t.Fatalf("DeserializePayload failed on fuzzed input: %v", err)
		}
		if got.From != tx.From || got.Amount != tx.Amount || got.Nonce != tx.Nonce ||
			got.Signature != tx.Signature || got.Hash != tx.Hash {
			t.Fatalf("Fuzzed round trip lost fields: %+v != %+v", got, tx)
		}
	}
}

func TestDeserializeRejectsForeignEnvelope(t *testing.T) {
	if _, err := DeserializePayload([]byte("not json")); !errors.Is(err, errors.ErrCodeInvalidPayload) {
		t.Fatal("Garbage payload should fail with invalid payload")
	}

	wrongType, _ := jsonx.Marshal(ExchangePayload{Type: "OTHER_SCHEME", Version: PayloadVersion})
	if _, err := DeserializePayload(wrongType); !errors.Is(err, errors.ErrCodeInvalidPayload) {
		t.Fatal("Foreign type should fail with invalid payload")
	}

	wrongVersion, _ := jsonx.Marshal(ExchangePayload{Type: PayloadType, Version: "9.9"})
	if _, err := DeserializePayload(wrongVersion); !errors.Is(err, errors.ErrCodeInvalidPayload) {
		t.Fatal("Unknown version should fail with invalid payload")
	}
}
