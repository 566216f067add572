package main

import (
	"context"
	"io"
	"log"
	"testing"
)

func TestCreateStores_MemoryModeHasNoEventSink(t *testing.T) {
	logger := log.New(io.Discard, "", 0)

	st, cleanup, err := createStores(context.Background(), "", "", true, logger)
	if err != nil {
		t.Fatalf("createStores: %v", err)
	}
	defer cleanup()

	if st.ledger == nil {
		t.Error("expected a ledger")
	}
	if st.progress == nil {
		t.Error("expected an export progress store")
	}
	if st.events != nil {
		t.Error("expected no event sink in memory mode")
	}
}
