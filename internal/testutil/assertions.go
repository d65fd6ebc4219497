package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// AssertNormal checks that a member calculated to want.
func AssertNormal(t *testing.T, member model.Member, want cty.Value) {
	t.Helper()
	require.Equal(t, model.StateNormal, member.State(), "member %s: %v", member.Name(), member.Error())
	require.True(t, value.Equal(want, member.Data()),
		"member %s: want %#v, got %#v", member.Name(), want, member.Data())
}

// AssertError checks that a member is in the error state with message msg.
func AssertError(t *testing.T, member model.Member, msg string) {
	t.Helper()
	require.Equal(t, model.StateError, member.State(), "member %s", member.Name())
	require.Error(t, member.Error())
	require.Equal(t, msg, member.Error().Error())
}

// FindEvent returns the change event for a member id, or nil.
func FindEvent(events []model.ChangeEvent, id string) *model.ChangeEvent {
	for i := range events {
		if events[i].MemberID == id {
			return &events[i]
		}
	}
	return nil
}
