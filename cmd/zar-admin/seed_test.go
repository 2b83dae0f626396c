package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/zar/internal/models"
	"github.com/example/zar/internal/testutil"
	"github.com/example/zar/internal/utils"
)

const deliverySeed = `
zones:
  - name: City centre
    fee: "10.00"
    estimated_time: 30-45 min
  - name: Suburbs
    fee: "17.50"
    estimated_time: 60-90 min
    inactive: true
slots:
  - label: Morning
    start: "09:00"
    end: "12:00"
  - label: Evening
    start: "18:00"
    end: "21:00"
`

func TestParseSeed(t *testing.T) {
	seed, err := parseSeed([]byte(deliverySeed))
	require.NoError(t, err)

	require.Len(t, seed.zones, 2)
	assert.Equal(t, "City centre", seed.zones[0].Name)
	assert.True(t, seed.zones[0].Fee.Equal(decimal.RequireFromString("10")))
	assert.True(t, seed.zones[0].IsActive)
	assert.False(t, seed.zones[1].IsActive)

	require.Len(t, seed.slots, 2)
	assert.Equal(t, "18:00", seed.slots[1].StartTime)
	assert.Equal(t, 2, seed.slots[1].SortOrder)
}

func TestParseSeedRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"not yaml", "zones: [", "parse seed"},
		{"zone without name", "zones:\n  - fee: \"1\"\n", "zones[0]: name is required"},
		{"bad fee", "zones:\n  - name: A\n    fee: ten\n", "invalid fee"},
		{"negative fee", "zones:\n  - name: A\n    fee: \"-1\"\n", "must not be negative"},
		{"slot without label", "slots:\n  - start: \"09:00\"\n    end: \"10:00\"\n", "label is required"},
		{"bad clock", "slots:\n  - label: A\n    start: \"9am\"\n    end: \"10:00\"\n", "HH:MM"},
		{"reversed window", "slots:\n  - label: A\n    start: \"12:00\"\n    end: \"09:00\"\n", "start must be before end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeed([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplySeedUpserts(t *testing.T) {
	db := testutil.NewDB(t)

	seed, err := parseSeed([]byte(deliverySeed))
	require.NoError(t, err)

	zones, slots, err := applySeed(db, seed)
	require.NoError(t, err)
	assert.Equal(t, 2, zones)
	assert.Equal(t, 2, slots)

	again, err := parseSeed([]byte(`
zones:
  - name: City centre
    fee: "12.00"
    estimated_time: 20-30 min
slots:
  - label: Morning
    start: "08:00"
    end: "11:00"
`))
	require.NoError(t, err)
	_, _, err = applySeed(db, again)
	require.NoError(t, err)

	var zoneCount, slotCount int64
	require.NoError(t, db.Model(&models.DeliveryZone{}).Count(&zoneCount).Error)
	require.NoError(t, db.Model(&models.DeliverySlot{}).Count(&slotCount).Error)
	assert.EqualValues(t, 2, zoneCount)
	assert.EqualValues(t, 2, slotCount)

	var centre models.DeliveryZone
	require.NoError(t, db.Where("name = ?", "City centre").First(&centre).Error)
	assert.True(t, centre.Fee.Equal(decimal.RequireFromString("12")), centre.Fee.String())
	assert.Equal(t, "20-30 min", centre.EstimatedTime)

	var morning models.DeliverySlot
	require.NoError(t, db.Where("label = ?", "Morning").First(&morning).Error)
	assert.Equal(t, "08:00", morning.StartTime)
}

func TestUpsertAdmin(t *testing.T) {
	db := testutil.NewDB(t)

	admin, created, err := upsertAdmin(db, " owner ", "first-password", false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "owner", admin.Username)
	assert.NotZero(t, admin.ID)

	_, _, err = upsertAdmin(db, "owner", "second-password", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, created, err = upsertAdmin(db, "owner", "second-password", true)
	require.NoError(t, err)
	assert.False(t, created)

	var stored models.Admin
	require.NoError(t, db.Where("username = ?", "owner").First(&stored).Error)
	assert.True(t, utils.CheckPassword(stored.PasswordHash, "second-password"))
	assert.False(t, utils.CheckPassword(stored.PasswordHash, "first-password"))

	_, _, err = upsertAdmin(db, "", "whatever-password", false)
	require.Error(t, err)

	_, _, err = upsertAdmin(db, "shorty", "short", false)
	require.ErrorIs(t, err, utils.ErrPasswordTooShort)
}

func TestIssueToken(t *testing.T) {
	clock := utils.NewFakeClock(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))
	tokens := utils.NewTokenService("cli-secret", time.Hour, clock)

	token, err := issueToken(tokens, 7, "owner")
	require.NoError(t, err)

	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	id, ok := claims.Int64Claim("id")
	require.True(t, ok)
	assert.EqualValues(t, 7, id)
	username, _ := claims.StringClaim("username")
	assert.Equal(t, "owner", username)

	_, err = issueToken(tokens, 0, "owner")
	require.Error(t, err)
	_, err = issueToken(tokens, 7, " ")
	require.Error(t, err)
}

func TestRunDispatch(t *testing.T) {
	var out bytes.Buffer

	require.Error(t, run(nil, &out))
	assert.Contains(t, out.String(), "usage: zar-admin")

	out.Reset()
	require.NoError(t, run([]string{"help"}, &out))
	assert.Contains(t, out.String(), "issue-token")

	out.Reset()
	err := run([]string{"drop-tables"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "drop-tables"`)

	out.Reset()
	require.NoError(t, run([]string{"seed", "--help"}, &out))

	require.EqualError(t, run([]string{"seed"}, &out), "--file is required")
	require.Error(t, run([]string{"seed", "--bogus"}, &out))
}
