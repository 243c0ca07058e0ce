package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/audit"
	"github.com/tabledeck/tabledeck-engine/pkg/crypto"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
)

type integrationFixture struct {
	svc      IntegrationService
	repo     *fakeIntegrationRepo
	factory  *spyFactory
	adapter  *spyAdapter
	auditLog *recordingAuditRepo
	trail    *audit.Trail
	cipher   *crypto.CredentialCipher
}

func newIntegrationFixture(t *testing.T) *integrationFixture {
	t.Helper()
	cipher, err := crypto.NewCredentialCipher(testKey)
	require.NoError(t, err)

	auditLog := &recordingAuditRepo{}
	trail := audit.NewTrail(auditLog, 64, zap.NewNop())
	t.Cleanup(trail.Close)

	adapter := &spyAdapter{}
	factory := &spyFactory{adapter: adapter}
	repo := newFakeIntegrationRepo()
	svc := NewIntegrationService(repo, cipher, factory, trail, 5*time.Second, zap.NewNop())

	return &integrationFixture{
		svc: svc, repo: repo, factory: factory, adapter: adapter,
		auditLog: auditLog, trail: trail, cipher: cipher,
	}
}

func TestConnectEncryptsBeforePersisting(t *testing.T) {
	fx := newIntegrationFixture(t)

	rec, err := fx.svc.Connect(context.Background(), "user-1", models.ProviderNeon,
		map[string]string{"host": "db.example.com", "password": "hunter2"}, false)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsActive)

	stored := fx.repo.records[repoKey("user-1", models.ProviderNeon)]
	require.NotNil(t, stored)
	assert.NotEqual(t, "hunter2", stored.Config["password"], "secrets must not be stored in plaintext")
	assert.Contains(t, stored.Config["password"], ":", "ciphertext carries the iv prefix")

	pt, err := fx.cipher.Decrypt(stored.Config["password"])
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pt)
}

func TestConnectTestOnlyDoesNotPersist(t *testing.T) {
	fx := newIntegrationFixture(t)

	rec, err := fx.svc.Connect(context.Background(), "user-1", models.ProviderNeon,
		map[string]string{"host": "h"}, true)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Empty(t, fx.repo.records)
	assert.Equal(t, 1, fx.factory.builds, "the connection test still runs")

	// a verification attempt is still an attempt
	fx.trail.Close()
	require.Len(t, fx.auditLog.entries, 1)
	assert.Equal(t, models.AuditActionConnect, fx.auditLog.entries[0].Action)
	assert.Equal(t, models.AuditStatusSuccess, fx.auditLog.entries[0].Status)
}

func TestConnectPersistFailureIsAudited(t *testing.T) {
	fx := newIntegrationFixture(t)
	fx.repo.upsertErr = errors.New("connection pool exhausted")

	_, err := fx.svc.Connect(context.Background(), "user-1", models.ProviderNeon,
		map[string]string{"host": "db.example.com"}, false)
	require.Error(t, err)

	fx.trail.Close()
	require.Len(t, fx.auditLog.entries, 1)
	assert.Equal(t, models.AuditActionConnect, fx.auditLog.entries[0].Action)
	assert.Equal(t, models.AuditStatusError, fx.auditLog.entries[0].Status)
}

func TestConnectFailureIsAuditedAndNotPersisted(t *testing.T) {
	fx := newIntegrationFixture(t)
	fx.adapter.err = apperrors.ErrConnectionFailed

	_, err := fx.svc.Connect(context.Background(), "user-1", models.ProviderNeon,
		map[string]string{"host": "unreachable"}, false)
	require.ErrorIs(t, err, apperrors.ErrConnectionFailed)
	assert.Empty(t, fx.repo.records)

	fx.trail.Close()
	require.Len(t, fx.auditLog.entries, 1)
	assert.Equal(t, models.AuditActionConnect, fx.auditLog.entries[0].Action)
	assert.Equal(t, models.AuditStatusError, fx.auditLog.entries[0].Status)
}

func TestReconnectRotatesAndReactivates(t *testing.T) {
	fx := newIntegrationFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Connect(ctx, "user-1", models.ProviderNeon, map[string]string{"password": "old"}, false)
	require.NoError(t, err)
	require.NoError(t, fx.svc.Disconnect(ctx, "user-1", models.ProviderNeon))

	rec, err := fx.svc.Connect(ctx, "user-1", models.ProviderNeon, map[string]string{"password": "new"}, false)
	require.NoError(t, err)
	assert.True(t, rec.IsActive)

	pt, err := fx.cipher.Decrypt(fx.repo.records[repoKey("user-1", models.ProviderNeon)].Config["password"])
	require.NoError(t, err)
	assert.Equal(t, "new", pt)
}

func TestDisconnectIsSoftAndIdempotentPerRecord(t *testing.T) {
	fx := newIntegrationFixture(t)
	ctx := context.Background()

	err := fx.svc.Disconnect(ctx, "user-1", models.ProviderTurso)
	require.ErrorIs(t, err, apperrors.ErrIntegrationNotFound)

	_, err = fx.svc.Connect(ctx, "user-1", models.ProviderTurso, map[string]string{"url": "u"}, false)
	require.NoError(t, err)
	require.NoError(t, fx.svc.Disconnect(ctx, "user-1", models.ProviderTurso))

	stored := fx.repo.records[repoKey("user-1", models.ProviderTurso)]
	require.NotNil(t, stored, "the record survives a disconnect")
	assert.False(t, stored.IsActive)
}

func TestCompleteOAuthMergesExistingConfig(t *testing.T) {
	fx := newIntegrationFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Connect(ctx, "user-1", models.ProviderConvex,
		map[string]string{"deployment_url": "https://x.convex.cloud", "access_token": "old"}, false)
	require.NoError(t, err)

	_, err = fx.svc.CompleteOAuth(ctx, "user-1", models.ProviderConvex,
		map[string]string{"access_token": "fresh", "refresh_token": "r1"})
	require.NoError(t, err)

	stored := fx.repo.records[repoKey("user-1", models.ProviderConvex)]
	tok, err := fx.cipher.Decrypt(stored.Config["access_token"])
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)

	// deployment_url from the original connect survives the token refresh
	u, err := fx.cipher.Decrypt(stored.Config["deployment_url"])
	require.NoError(t, err)
	assert.Equal(t, "https://x.convex.cloud", u)
}

func TestCompleteOAuthRejectsNonOAuthProvider(t *testing.T) {
	fx := newIntegrationFixture(t)

	_, err := fx.svc.CompleteOAuth(context.Background(), "user-1", models.ProviderPlanetScale,
		map[string]string{"access_token": "x"})
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestListShowsEveryProvider(t *testing.T) {
	fx := newIntegrationFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Connect(ctx, "user-1", models.ProviderNeon, map[string]string{"host": "h"}, false)
	require.NoError(t, err)

	statuses, err := fx.svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, statuses, len(models.Providers()))

	byProvider := make(map[models.Provider]IntegrationStatus)
	for _, st := range statuses {
		byProvider[st.Provider] = st
	}
	assert.True(t, byProvider[models.ProviderNeon].Connected)
	assert.True(t, byProvider[models.ProviderNeon].Active)
	assert.NotNil(t, byProvider[models.ProviderNeon].ConnectedAt)
	assert.False(t, byProvider[models.ProviderSupabase].Connected)
	assert.True(t, byProvider[models.ProviderConvex].OAuth)
	assert.False(t, byProvider[models.ProviderTurso].OAuth)
}
