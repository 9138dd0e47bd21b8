package core

import (
	"context"
	"testing"
)

func TestNewRefreshJobMessage(t *testing.T) {
	msg, err := NewRefreshJobMessage(RefreshRequest{OrganizationID: " org_1 ", ProviderID: "Slack"})
	if err != nil {
		t.Fatalf("new refresh job message: %v", err)
	}
	if msg.JobID != JobIDRefresh {
		t.Fatalf("expected refresh job id, got %q", msg.JobID)
	}
	if msg.Parameters["organization_id"] != "org_1" || msg.Parameters["provider_id"] != "slack" {
		t.Fatalf("expected normalized parameters, got %#v", msg.Parameters)
	}
	if msg.IdempotencyKey != "integrations.refresh:org_1|slack" {
		t.Fatalf("unexpected idempotency key %q", msg.IdempotencyKey)
	}
	if _, err := NewRefreshJobMessage(RefreshRequest{ProviderID: "slack"}); err == nil {
		t.Fatalf("expected missing organization to be rejected")
	}
}

func TestService_EnqueueRefreshAndRotate(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	rotator := testRotator{from: newTestVault("v1"), to: newTestVault("v2")}
	svc, err := newTestService(&testProvider{id: "slack"}, WithJobEnqueuer(enqueuer), WithKeyRotator(rotator))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.EnqueueRefresh(context.Background(), RefreshRequest{OrganizationID: "org_1", ProviderID: "slack"}); err != nil {
		t.Fatalf("enqueue refresh: %v", err)
	}
	if err := svc.EnqueueRotateKeys(context.Background(), RotateKeysRequest{BatchSize: 50}); err != nil {
		t.Fatalf("enqueue rotate: %v", err)
	}
	if len(enqueuer.messages) != 2 {
		t.Fatalf("expected 2 queued messages, got %d", len(enqueuer.messages))
	}
	rotate := enqueuer.messages[1]
	if rotate.JobID != JobIDRotateKeys || rotate.Parameters["target_key_id"] != "v2" {
		t.Fatalf("unexpected rotate message %#v", rotate)
	}
}

func TestService_EnqueueWithoutEnqueuer(t *testing.T) {
	svc, err := newTestService(nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	err = svc.EnqueueRefresh(context.Background(), RefreshRequest{OrganizationID: "org_1", ProviderID: "slack"})
	if !IsKind(err, KindInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
}

func TestService_HandleJobAcksSuccessfulRefresh(t *testing.T) {
	provider := &testProvider{id: "slack"}
	svc, err := newTestService(provider)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	redirect := connectForTest(t, svc, "slack")
	if _, err := svc.CompleteCallback(context.Background(), CallbackRequest{Code: "c", State: redirect.State}); err != nil {
		t.Fatalf("complete callback: %v", err)
	}

	msg, _ := NewRefreshJobMessage(RefreshRequest{OrganizationID: "org_1", ProviderID: "slack"})
	delivery := &recordingDelivery{msg: msg}
	if err := svc.HandleJob(context.Background(), delivery); err != nil {
		t.Fatalf("handle job: %v", err)
	}
	if !delivery.acked || delivery.nacked {
		t.Fatalf("expected ack, got %#v", delivery)
	}
	if provider.refreshCalls != 1 {
		t.Fatalf("expected one provider refresh, got %d", provider.refreshCalls)
	}
}

func TestService_HandleJobRequeuesTransientFailure(t *testing.T) {
	provider := &testProvider{id: "slack"}
	svc, err := newTestService(provider)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	seedTokenSet(t, svc.tokenSetStore, "org_1", "slack", DefaultEncryptionKeyID)
	locker := svc.credentialLocker
	handle, _ := locker.Acquire(context.Background(), tokenSetKey("org_1", "slack"), 0)
	defer handle.Unlock(context.Background())

	msg, _ := NewRefreshJobMessage(RefreshRequest{OrganizationID: "org_1", ProviderID: "slack"})
	delivery := &recordingDelivery{msg: msg}
	if err := svc.HandleJob(context.Background(), delivery); err == nil {
		t.Fatalf("expected handle job error")
	}
	if !delivery.nacked || !delivery.nack.Requeue || delivery.nack.DeadLetter {
		t.Fatalf("expected requeue, got %#v", delivery.nack)
	}
	if delivery.nack.Delay != defaultJobRetryDelay {
		t.Fatalf("expected retry delay %s, got %s", defaultJobRetryDelay, delivery.nack.Delay)
	}
}

func TestService_HandleJobDeadLettersPermanentFailure(t *testing.T) {
	svc, err := newTestService(&testProvider{id: "slack"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	msg, _ := NewRefreshJobMessage(RefreshRequest{OrganizationID: "org_1", ProviderID: "slack"})
	delivery := &recordingDelivery{msg: msg}
	_ = svc.HandleJob(context.Background(), delivery)
	if !delivery.nacked || !delivery.nack.DeadLetter {
		t.Fatalf("expected not connected refresh to be dead-lettered, got %#v", delivery.nack)
	}

	unknown := &recordingDelivery{msg: &JobExecutionMessage{JobID: "integrations.unknown"}}
	_ = svc.HandleJob(context.Background(), unknown)
	if !unknown.nacked || !unknown.nack.DeadLetter {
		t.Fatalf("expected unknown job to be dead-lettered, got %#v", unknown.nack)
	}
}

func TestService_HandleJobRunsRotation(t *testing.T) {
	oldVault := newTestVault("v1")
	rotator := testRotator{from: newTestVault("v2", "v1"), to: newTestVault("v2")}
	svc, err := newTestService(nil, WithTokenVault(newTestVault("v2", "v1")), WithKeyRotator(rotator))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	access, _ := oldVault.Encrypt("access")
	if _, err := svc.tokenSetStore.Upsert(context.Background(), OAuthTokenSet{
		OrganizationID:       "org_1",
		ProviderID:           "slack",
		AccessTokenEncrypted: access,
		EncryptionKeyID:      "v1",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	delivery := &recordingDelivery{msg: NewRotateKeysJobMessage("v2", RotateKeysRequest{})}
	if err := svc.HandleJob(context.Background(), delivery); err != nil {
		t.Fatalf("handle rotate job: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected rotate job ack")
	}

	mismatch := &recordingDelivery{msg: NewRotateKeysJobMessage("v9", RotateKeysRequest{})}
	_ = svc.HandleJob(context.Background(), mismatch)
	if !mismatch.nack.DeadLetter {
		t.Fatalf("expected mismatched rotation target to be dead-lettered, got %#v", mismatch.nack)
	}
}
