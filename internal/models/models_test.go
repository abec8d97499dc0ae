package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Kind
		wantErr bool
	}{
		{name: "kind name", in: "banner", want: KindBanner},
		{name: "table name from legacy metadata", in: "premium_text_servers", want: KindTextServer},
		{name: "unknown", in: "guild", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindTables(t *testing.T) {
	assert.Equal(t, "servers", KindServer.Table())
	assert.Equal(t, "advertisements", KindAdvertisement.Table())
	assert.Equal(t, "premium_text_servers", KindTextServer.Table())
	assert.Equal(t, "premium_banners", KindBanner.Table())
	assert.Equal(t, "rotating_promos", KindPromo.Table())
	assert.Len(t, Kinds(), 5)
}

func TestListing_EffectiveStatus(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	slot := 5

	expired := Listing{Status: StatusActive, IsActive: true, SlotID: &slot, ExpiresAt: &past}
	assert.Equal(t, StatusExpired, expired.EffectiveStatus(now))
	assert.False(t, expired.IsLive(now))

	live := Listing{Status: StatusActive, IsActive: true, SlotID: &slot, ExpiresAt: &future}
	assert.Equal(t, StatusActive, live.EffectiveStatus(now))
	assert.True(t, live.IsLive(now))

	draft := Listing{Status: StatusDraft}
	assert.Equal(t, StatusDraft, draft.EffectiveStatus(now))
	assert.False(t, draft.IsLive(now))
}

func TestSplitFee(t *testing.T) {
	fee, earnings := SplitFee(1999, 10)
	assert.Equal(t, int64(199), fee)
	assert.Equal(t, int64(1800), earnings)

	fee, earnings = SplitFee(1000, 0)
	assert.Equal(t, int64(0), fee)
	assert.Equal(t, int64(1000), earnings)

	fee, earnings = SplitFee(0, 10)
	assert.Equal(t, int64(0), fee)
	assert.Equal(t, int64(0), earnings)
}

func TestCapacityExceededError(t *testing.T) {
	err := &CapacityExceededError{SlotID: 5, MaxConcurrent: 4}
	assert.Equal(t, "slot 5 is full (4 listings)", err.Error())

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	err.NextAvailableAt = &at
	assert.Contains(t, err.Error(), "2025-03-01T00:00:00Z")
}

func TestSlotUsage_Full(t *testing.T) {
	limit := 4
	assert.False(t, SlotUsage{Live: 100}.Full())
	assert.False(t, SlotUsage{Live: 3, MaxConcurrent: &limit}.Full())
	assert.True(t, SlotUsage{Live: 4, MaxConcurrent: &limit}.Full())
}

func TestSlotPurchase_ActiveAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&SlotPurchase{IsActive: true, ExpiresAt: &future}).ActiveAt(now))
	assert.True(t, (&SlotPurchase{IsActive: true}).ActiveAt(now))
	assert.False(t, (&SlotPurchase{IsActive: true, ExpiresAt: &past}).ActiveAt(now))
	assert.False(t, (&SlotPurchase{IsActive: false, ExpiresAt: &future}).ActiveAt(now))
}
