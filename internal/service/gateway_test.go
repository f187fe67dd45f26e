package service

import (
	"context"
	"errors"
	"testing"

	"rollcall/internal/remote"
	"rollcall/internal/repository"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/constraints"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(h *harness) *Gateway {
	return NewGateway(h.queue, h.remote, h.signal, h.inval, nil)
}

func TestGateway_OnlineSuccess(t *testing.T) {
	h := newHarness(t, true)
	res, err := newGateway(h).Save(context.Background(), payload(4))
	require.NoError(t, err)

	assert.False(t, res.Offline)
	assert.JSONEq(t, `{"ok":true,"classId":4}`, string(res.Remote))
	assert.Empty(t, h.pendingIDs(t))
	assert.Equal(t, []int64{4}, h.inval.classes)
	assert.Equal(t, constraints.MethodOnline, h.remote.calls[0].Method)
}

func TestGateway_OfflineAccepts(t *testing.T) {
	h := newHarness(t, false)
	res, err := newGateway(h).Save(context.Background(), payload(4))
	require.NoError(t, err)

	assert.True(t, res.Offline)
	assert.NotZero(t, res.QueuedID)
	assert.Equal(t, []int64{res.QueuedID}, h.pendingIDs(t))
	assert.Zero(t, h.remote.callCount(), "no remote call while offline")
}

func TestGateway_NetworkErrorQueues(t *testing.T) {
	h := newHarness(t, true)
	h.remote.answers[4] = errTimeout

	res, err := newGateway(h).Save(context.Background(), payload(4))
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Len(t, h.pendingIDs(t), 1)

	sub, err := h.queue.Get(context.Background(), res.QueuedID)
	require.NoError(t, err)
	stored, err := sub.Decode()
	require.NoError(t, err)
	assert.Empty(t, stored.Method, "the replay sets its own method tag")
}

func TestGateway_RejectionPropagates(t *testing.T) {
	h := newHarness(t, true)
	h.remote.answers[4] = rejection("class not found")

	res, err := newGateway(h).Save(context.Background(), payload(4))
	require.Error(t, err)
	assert.Nil(t, res)

	var apiErr *remote.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "class not found", apiErr.Message)
	assert.Empty(t, h.pendingIDs(t))
}

func TestGateway_StorageErrorIsNotSilent(t *testing.T) {
	h := newHarness(t, false)
	gw := NewGateway(brokenQueue{}, h.remote, h.signal, nil, nil)

	res, err := gw.Save(context.Background(), payload(4))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
}

func TestValidatePayload(t *testing.T) {
	valid := payload(1)

	tests := []struct {
		name   string
		mutate func(p *v1.AttendancePayload)
		ok     bool
	}{
		{name: "valid", mutate: func(p *v1.AttendancePayload) {}, ok: true},
		{name: "zero class", mutate: func(p *v1.AttendancePayload) { p.ClassID = 0 }},
		{name: "bad date", mutate: func(p *v1.AttendancePayload) { p.Date = "10/05/2026" }},
		{name: "no type", mutate: func(p *v1.AttendancePayload) { p.SessionType = "" }},
		{name: "no records", mutate: func(p *v1.AttendancePayload) { p.Records = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			p.Records = append([]v1.AttendanceRecord(nil), valid.Records...)
			tt.mutate(&p)
			err := ValidatePayload(p)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPayload)
			}
		})
	}
}

func TestGateway_InvalidPayloadDoesNoIO(t *testing.T) {
	h := newHarness(t, false)
	p := payload(1)
	p.Records = nil

	_, err := newGateway(h).Save(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Empty(t, h.pendingIDs(t))
}
