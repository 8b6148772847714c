package ua

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sipcore/agent/pkg/rtpsession"
)

func TestCallLifecycleUAS(t *testing.T) {
	c := NewCall("call-1", RoleUAS, nil)
	require.Equal(t, CallIncoming, c.State())

	require.NoError(t, c.Ring(context.Background()))
	require.Equal(t, CallRinging, c.State())

	session := rtpsession.New(rtpsession.Config{}, nil)
	require.NoError(t, c.Establish(context.Background(), session))
	require.Equal(t, CallEstablished, c.State())
	require.True(t, c.ReachedEstablished())

	require.NoError(t, c.Terminate(context.Background()))
	require.Equal(t, CallTerminated, c.State())
	require.False(t, session.Active())
}

func TestCallFailsWithoutReachingEstablished(t *testing.T) {
	c := NewCall("call-2", RoleUAC, nil)
	require.Equal(t, CallCalling, c.State())

	require.NoError(t, c.Fail(context.Background()))
	require.Equal(t, CallFailed, c.State())
	require.False(t, c.ReachedEstablished())
}

func TestCallCannotEstablishAfterTerminated(t *testing.T) {
	c := NewCall("call-3", RoleUAS, nil)
	require.NoError(t, c.Ring(context.Background()))
	require.NoError(t, c.Establish(context.Background(), nil))
	require.NoError(t, c.Terminate(context.Background()))

	err := c.Establish(context.Background(), nil)
	require.Error(t, err)
}
