package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ridelink/rideshare-backend/internal/apperrors"
)

func TestRequestTransitions(t *testing.T) {
	cases := []struct {
		from    RequestStatus
		to      RequestStatus
		allowed bool
	}{
		{RequestStatusPending, RequestStatusApproved, true},
		{RequestStatusPending, RequestStatusRejected, true},
		{RequestStatusPending, RequestStatusCancelled, true},
		{RequestStatusApproved, RequestStatusCancelled, true},
		{RequestStatusApproved, RequestStatusRejected, false},
		{RequestStatusApproved, RequestStatusPending, false},
		{RequestStatusRejected, RequestStatusApproved, false},
		{RequestStatusRejected, RequestStatusRejected, false},
		{RequestStatusCancelled, RequestStatusPending, false},
		{RequestStatusCancelled, RequestStatusApproved, false},
	}

	for _, tc := range cases {
		request := &TripRequest{Status: tc.from}
		err := request.Transition(tc.to)
		if tc.allowed {
			assert.NoError(t, err, "%s -> %s should be allowed", tc.from, tc.to)
			assert.Equal(t, tc.to, request.Status)
		} else {
			assert.True(t, apperrors.Is(err, apperrors.KindInvalidStateTransition),
				"%s -> %s should be rejected", tc.from, tc.to)
			assert.Equal(t, tc.from, request.Status)
		}
	}
}

func TestRequestRejectIsNotIdempotent(t *testing.T) {
	request := &TripRequest{Status: RequestStatusPending}

	assert.NoError(t, request.Transition(RequestStatusRejected))

	err := request.Transition(RequestStatusRejected)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidStateTransition))
}

func TestRequestIsActive(t *testing.T) {
	assert.True(t, (&TripRequest{Status: RequestStatusPending}).IsActive())
	assert.True(t, (&TripRequest{Status: RequestStatusApproved}).IsActive())
	assert.False(t, (&TripRequest{Status: RequestStatusRejected}).IsActive())
	assert.False(t, (&TripRequest{Status: RequestStatusCancelled}).IsActive())
}
