package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportPDF(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)
	svc := NewExportService(h.chats).(*exportService)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	out, err := svc.ExportPDF(context.Background(), owner, chat.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Contains(t, string(bytes.TrimSpace(out[len(out)-16:])), "%%EOF")
}

func TestExportPDF_Ownership(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)
	svc := NewExportService(h.chats)

	_, err := svc.ExportPDF(context.Background(), stranger, chat.ID)
	assert.ErrorIs(t, err, ErrChatNotFound)

	_, err = svc.ExportPDF(context.Background(), owner, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
