package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roofcrm/internal/models"
	"roofcrm/internal/repositories"
	"roofcrm/internal/services"
	"roofcrm/internal/workflow"
)

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) SendStatusChangedEmail(email string, _ *models.Leads, _ workflow.Transition) error {
	f.sent = append(f.sent, email)
	return f.err
}

type fakeTelegram struct {
	chats []int64
	texts []string
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	f.chats = append(f.chats, msg.ChatID)
	f.texts = append(f.texts, msg.Text)
	return tgbotapi.Message{}, nil
}

const owner = 7

func notifierFixture(t *testing.T) (*repositories.MemoryStore, *services.StatusTransitionService, *models.Leads) {
	t.Helper()
	mem := repositories.NewMemoryStore()
	mem.PutUser(models.User{ID: owner, Email: "owner@roofs.test", RoleID: 10, TelegramChatID: 555, NotifyTelegram: true})
	svc := services.NewStatusTransitionService(mem)
	lead := &models.Leads{Title: "Storm <repair>", OwnerID: owner}
	require.NoError(t, svc.CreateLead(context.Background(), lead, ptr(owner), nil))
	return mem, svc, lead
}

func TestStatusNotifier_TellsOwnerAboutAutomatedChange(t *testing.T) {
	mem, svc, lead := notifierFixture(t)
	email, tg := &fakeEmail{}, &fakeTelegram{}
	n := services.NewStatusNotifier(mem, mem.Users(), email, services.NewTelegramServiceWithSender(tg))

	res, err := svc.ApplyEvent(context.Background(), quoteCreated(lead.ID))
	require.NoError(t, err)
	require.NoError(t, n.StatusChanged(context.Background(), *res.Record))

	assert.Equal(t, []string{"owner@roofs.test"}, email.sent)
	require.Equal(t, []int64{555}, tg.chats)
	assert.Contains(t, tg.texts[0], "Storm &lt;repair&gt;")
	assert.Contains(t, tg.texts[0], "QUOTE/ESTIMATING")
}

func TestStatusNotifier_SkipsOwnChanges(t *testing.T) {
	mem, svc, lead := notifierFixture(t)
	email, tg := &fakeEmail{}, &fakeTelegram{}
	n := services.NewStatusNotifier(mem, mem.Users(), email, services.NewTelegramServiceWithSender(tg))

	res, err := svc.Apply(context.Background(), services.TransitionRequest{
		LeadID: lead.ID, Target: contacted, Origin: workflow.OriginManual, ChangedBy: ptr(owner),
	})
	require.NoError(t, err)
	require.NoError(t, n.StatusChanged(context.Background(), *res.Record))

	assert.Empty(t, email.sent)
	assert.Empty(t, tg.chats)
}

func TestStatusNotifier_ReportsDeliveryFailures(t *testing.T) {
	mem, svc, lead := notifierFixture(t)
	email := &fakeEmail{err: errors.New("smtp down")}
	n := services.NewStatusNotifier(mem, mem.Users(), email, nil)

	res, err := svc.ApplyEvent(context.Background(), quoteCreated(lead.ID))
	require.NoError(t, err)
	assert.ErrorContains(t, n.StatusChanged(context.Background(), *res.Record), "smtp down")
}

func TestLeadService_ObserverFailureDoesNotFailTransition(t *testing.T) {
	mem, svc, lead := notifierFixture(t)
	failing := services.NewStatusNotifier(mem, mem.Users(), &fakeEmail{err: errors.New("smtp down")}, nil)
	leads := services.NewLeadService(mem, svc, failing)

	res, err := leads.ChangeStatus(context.Background(), lead.ID, contacted, operator, "left voicemail")
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeApplied, res.Outcome)
	assert.Equal(t, "left voicemail", res.Record.Metadata["note"])
	assert.Equal(t, contacted, currentStage(t, mem, lead.ID))
}

type blockingObserver struct {
	release chan struct{}
	mu      sync.Mutex
	got     []int64
}

func (b *blockingObserver) StatusChanged(_ context.Context, rec workflow.Transition) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, rec.ID)
	return nil
}

func TestAsyncObserver_DoesNotBlockCaller(t *testing.T) {
	slow := &blockingObserver{release: make(chan struct{})}
	async := services.NewAsyncObserver(slow, 1, time.Second)

	done := make(chan error, 1)
	go func() { done <- async.StatusChanged(context.Background(), workflow.Transition{ID: 1}) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("StatusChanged blocked on a slow observer")
	}

	close(slow.release)
	async.Close()
	assert.Equal(t, []int64{1}, slow.got)
}

func TestAsyncObserver_DropsWhenQueueFull(t *testing.T) {
	slow := &blockingObserver{release: make(chan struct{})}
	async := services.NewAsyncObserver(slow, 1, time.Second)

	var dropped int
	for i := 1; i <= 5; i++ {
		if err := async.StatusChanged(context.Background(), workflow.Transition{ID: int64(i)}); err != nil {
			dropped++
		}
	}
	assert.Positive(t, dropped)

	close(slow.release)
	async.Close()
	assert.Len(t, slow.got, 5-dropped)
}

func TestLeadService_NotifiesOffRequestPath(t *testing.T) {
	mem, svc, lead := notifierFixture(t)
	email, tg := &fakeEmail{}, &fakeTelegram{}
	async := services.NewAsyncObserver(services.NewStatusNotifier(mem, mem.Users(), email, services.NewTelegramServiceWithSender(tg)), 8, time.Second)
	events := services.NewLeadEventService(svc, async)

	res, err := events.Handle(context.Background(), quoteCreated(lead.ID))
	require.NoError(t, err)
	require.Equal(t, services.OutcomeApplied, res.Outcome)

	async.Close()
	assert.Equal(t, []string{"owner@roofs.test"}, email.sent)
	assert.Equal(t, []int64{555}, tg.chats)
}
