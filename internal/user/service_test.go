package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(context.Background(), NewMemoryInfra(), "@root", []string{"en", "de", "ru"}, zap.NewNop().Sugar())
	require.NoError(t, err)
	return svc
}

func TestDefaultAdminSeeded(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.Equal(t, "root", svc.DefaultAdmin())
	assert.True(t, svc.IsAllowed(ctx, "root"))
	assert.True(t, svc.IsAdmin(ctx, "@root"))
}

func TestSeedKeepsExistingAdminPreferences(t *testing.T) {
	ctx := context.Background()
	infra := NewMemoryInfra()
	log := zap.NewNop().Sugar()

	svc, err := NewService(ctx, infra, "root", []string{"en", "ru"}, log)
	require.NoError(t, err)
	require.NoError(t, svc.SetLanguage(ctx, "root", "ru"))

	svc, err = NewService(ctx, infra, "root", []string{"en", "ru"}, log)
	require.NoError(t, err)
	assert.Equal(t, Language("ru"), svc.Language(ctx, "root"))
}

func TestAddRemoveRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddUser(ctx, "@alice", false))
	assert.True(t, svc.IsAllowed(ctx, "alice"))
	assert.False(t, svc.IsAdmin(ctx, "alice"))

	require.NoError(t, svc.SetLanguage(ctx, "alice", "de"))
	require.NoError(t, svc.SetVoice(ctx, "alice", VoiceFemale))

	require.NoError(t, svc.RemoveUser(ctx, "alice"))
	assert.False(t, svc.IsAllowed(ctx, "alice"))

	require.NoError(t, svc.AddUser(ctx, "alice", false))
	assert.Equal(t, DefaultLanguage, svc.Language(ctx, "alice"))
	assert.Equal(t, VoiceOriginal, svc.Voice(ctx, "alice"))
}

func TestAdminImpliesAllowed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddUser(ctx, "bob", true))
	assert.True(t, svc.IsAdmin(ctx, "bob"))
	assert.True(t, svc.IsAllowed(ctx, "bob"))
}

func TestDefaultAdminIsProtected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := svc.RemoveUser(ctx, "@root")
	require.ErrorIs(t, err, ErrProtectedUser)
	assert.True(t, svc.IsAllowed(ctx, "root"))

	require.NoError(t, svc.AddUser(ctx, "root", false))
	assert.True(t, svc.IsAdmin(ctx, "root"))
}

func TestUnknownUserDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.False(t, svc.IsAllowed(ctx, "mallory"))
	assert.Equal(t, DefaultLanguage, svc.Language(ctx, "mallory"))
	assert.Equal(t, VoiceOriginal, svc.Voice(ctx, "mallory"))
}

func TestSetLanguageValidates(t *testing.T) {
	svc := newTestService(t)
	err := svc.SetLanguage(context.Background(), "root", "fr")
	require.ErrorIs(t, err, ErrUnsupportedLanguage)

	err = svc.SetVoice(context.Background(), "root", "robot")
	require.ErrorIs(t, err, ErrUnknownVoice)
}

func TestListUsersSorted(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.AddUser(ctx, "zed", false))
	require.NoError(t, svc.AddUser(ctx, "amy", false))

	list, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "amy", list[0].Username)
	assert.Equal(t, "zed", list[2].Username)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "alice", Normalize(" @alice "))
	assert.Equal(t, "bob", Normalize("@@bob"))
}

func TestRemoveUnknownUser(t *testing.T) {
	svc := newTestService(t)
	err := svc.RemoveUser(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}
