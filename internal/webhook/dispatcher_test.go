package webhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/xo-kenar-bot/internal/adapter/xopresenter"
	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/quota"
	"github.com/park285/xo-kenar-bot/internal/store"
	"github.com/park285/xo-kenar-bot/internal/store/memstore"
	"github.com/park285/xo-kenar-bot/internal/xo"
)

type sent struct {
	conv string
	text string
	grid *xo.ControlGrid
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, conv, text string, grid *xo.ControlGrid) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{conv: conv, text: text, grid: grid})
	return f.err
}

func (f *fakeNotifier) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.msgs)
	return f.msgs[len(f.msgs)-1]
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeAssistant struct {
	prompts []string
	reply   string
	err     error
}

func (f *fakeAssistant) Ask(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type fixture struct {
	d         *Dispatcher
	backend   *memstore.Store
	notifier  *fakeNotifier
	assistant *fakeAssistant
	limiter   *quota.Limiter
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()
	clock := func() time.Time { return time.Date(2024, 11, 27, 13, 21, 0, 0, time.UTC) }
	backend := memstore.New(memstore.WithClock(clock))
	machine, err := xo.NewMachine(backend.Games(), nil, xo.WithClock(clock))
	require.NoError(t, err)
	limiter, err := quota.NewLimiter(backend.Quotas(), limit, nil, quota.WithClock(clock))
	require.NoError(t, err)

	f := &fixture{
		backend:   backend,
		notifier:  &fakeNotifier{},
		assistant: &fakeAssistant{reply: "Take the centre."},
		limiter:   limiter,
	}
	f.d, err = NewDispatcher(Deps{
		Machine:   machine,
		Quota:     limiter,
		Notifier:  f.notifier,
		Assistant: f.assistant,
		Renderer:  xopresenter.NewFormatter(nil, "/restart", "/ask"),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) seed(t *testing.T, conv, board string, status domain.Status) *domain.Game {
	t.Helper()
	g := domain.NewGame(conv, time.Now())
	b, err := domain.ParseBoard(board)
	require.NoError(t, err)
	g.Board = b
	g.Status = status
	saved, err := f.backend.Games().Save(context.Background(), g)
	require.NoError(t, err)
	return saved
}

func TestCommandsParse(t *testing.T) {
	c := DefaultCommands()
	cmd, _ := c.Parse("  /Restart please")
	require.Equal(t, CommandRestart, cmd)

	cmd, arg := c.Parse("/ASK Why Is The Centre Strong?")
	require.Equal(t, CommandAskAssistant, cmd)
	require.Equal(t, "Why Is The Centre Strong?", arg)

	cmd, _ = c.Parse("hello")
	require.Equal(t, CommandPlainMove, cmd)
}

func TestPlainMessageCreatesGameAndRenders(t *testing.T) {
	f := newFixture(t, 10)
	res := f.d.HandleChatMessage(context.Background(), "conv-1", "hi there")
	require.Equal(t, KindOK, res.Kind)
	require.NotZero(t, res.GameID)

	msg := f.notifier.last(t)
	require.Equal(t, "conv-1", msg.conv)
	require.Contains(t, msg.text, "Your turn!")
	require.NotNil(t, msg.grid)

	g, err := f.backend.Games().LoadByConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Equal(t, "---------", g.Board.String())

	again := f.d.HandleChatMessage(context.Background(), "conv-1", "anything")
	require.Equal(t, res.GameID, again.GameID)
}

func TestRestartReplacesGame(t *testing.T) {
	f := newFixture(t, 10)
	old := f.seed(t, "conv-r", "XO-------", domain.StatusInProgress)

	res := f.d.HandleChatMessage(context.Background(), "conv-r", "/restart")
	require.Equal(t, KindOK, res.Kind)
	require.NotEqual(t, old.ID, res.GameID)

	g, err := f.backend.Games().LoadByConversation(context.Background(), "conv-r")
	require.NoError(t, err)
	require.Equal(t, "---------", g.Board.String())
	require.Equal(t, domain.Player, g.CurrentTurn)
}

func TestCallbackEndToEnd(t *testing.T) {
	f := newFixture(t, 10)
	start := f.d.HandleChatMessage(context.Background(), "conv-e2e", "hi")

	res := f.d.HandleCallback(context.Background(), start.GameID, 0)
	require.Equal(t, KindOK, res.Kind)
	require.Contains(t, res.Message, "Your turn!")

	g, err := f.backend.Games().LoadByID(context.Background(), start.GameID)
	require.NoError(t, err)
	require.Equal(t, "X---O----", g.Board.String())

	msg := f.notifier.last(t)
	require.Equal(t, "conv-e2e", msg.conv)
	require.True(t, msg.grid.Rows[0][0].Payload.Disabled)
	require.True(t, msg.grid.Rows[1][1].Payload.Disabled)
	require.False(t, msg.grid.Rows[2][2].Payload.Disabled)
}

func TestCallbackPlayerWins(t *testing.T) {
	f := newFixture(t, 10)
	g := f.seed(t, "conv-w", "XX-OO----", domain.StatusInProgress)

	res := f.d.HandleCallback(context.Background(), g.ID, 2)
	require.Equal(t, KindOK, res.Kind)
	require.Equal(t, "Game Over - You Won! 🎉", res.Message)
}

func TestCallbackOccupiedIsRejectedSilently(t *testing.T) {
	f := newFixture(t, 10)
	g := f.seed(t, "conv-o", "X---O----", domain.StatusInProgress)

	res := f.d.HandleCallback(context.Background(), g.ID, 4)
	require.Equal(t, KindRejected, res.Kind)
	require.Equal(t, ReasonCellOccupied, res.Reason)
	require.ErrorIs(t, res.Err, domain.ErrCellOccupied)
	require.Zero(t, f.notifier.count())

	after, err := f.backend.Games().LoadByID(context.Background(), g.ID)
	require.NoError(t, err)
	require.Equal(t, g.Version, after.Version)
}

func TestCallbackInvalidPosition(t *testing.T) {
	f := newFixture(t, 10)
	g := f.seed(t, "conv-i", "---------", domain.StatusInProgress)
	res := f.d.HandleCallback(context.Background(), g.ID, 9)
	require.Equal(t, KindRejected, res.Kind)
	require.Equal(t, ReasonInvalidPosition, res.Reason)
}

func TestCallbackFinishedGameRerenders(t *testing.T) {
	f := newFixture(t, 10)
	g := f.seed(t, "conv-f", "XXXOO----", domain.StatusPlayerWon)

	res := f.d.HandleCallback(context.Background(), g.ID, 8)
	require.Equal(t, KindOK, res.Kind)
	require.Equal(t, "Game Over - You Won! 🎉", f.notifier.last(t).text)

	after, err := f.backend.Games().LoadByID(context.Background(), g.ID)
	require.NoError(t, err)
	require.Equal(t, "XXXOO----", after.Board.String())
}

func TestCallbackUnknownGame(t *testing.T) {
	f := newFixture(t, 10)
	res := f.d.HandleCallback(context.Background(), 12345, 0)
	require.Equal(t, KindNotFound, res.Kind)
	require.ErrorIs(t, res.Err, store.ErrNotFound)
}

func TestNotifierFailureKeepsMutation(t *testing.T) {
	f := newFixture(t, 10)
	g := f.seed(t, "conv-n", "---------", domain.StatusInProgress)
	f.notifier.err = errors.New("kenar down")

	res := f.d.HandleCallback(context.Background(), g.ID, 0)
	require.Equal(t, KindFailed, res.Kind)
	require.Equal(t, ReasonNotify, res.Reason)

	after, err := f.backend.Games().LoadByID(context.Background(), g.ID)
	require.NoError(t, err)
	require.Equal(t, "X---O----", after.Board.String())
}

func TestAskAssistant(t *testing.T) {
	f := newFixture(t, 10)
	res := f.d.HandleChatMessage(context.Background(), "conv-a", "/ask What Is A Fork?")
	require.Equal(t, KindOK, res.Kind)
	require.Equal(t, []string{"What Is A Fork?"}, f.assistant.prompts)

	msg := f.notifier.last(t)
	require.Equal(t, "Take the centre.", msg.text)
	require.Nil(t, msg.grid)

	left, err := f.limiter.Remaining(context.Background(), "conv-a")
	require.NoError(t, err)
	require.Equal(t, 9, left)

	_, err = f.backend.Games().LoadByConversation(context.Background(), "conv-a")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAskAssistantRateLimited(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.Equal(t, KindOK, f.d.HandleChatMessage(ctx, "conv-q", "/ask hi").Kind)
	}
	res := f.d.HandleChatMessage(ctx, "conv-q", "/ask hi")
	require.Equal(t, KindRateLimited, res.Kind)
	require.Len(t, f.assistant.prompts, 2)
}

func TestAskAssistantEmptyQuestionKeepsQuota(t *testing.T) {
	f := newFixture(t, 10)
	res := f.d.HandleChatMessage(context.Background(), "conv-e", "/ask   ")
	require.Equal(t, KindRejected, res.Kind)
	require.Equal(t, ReasonEmptyQuestion, res.Reason)
	require.Empty(t, f.assistant.prompts)

	left, err := f.limiter.Remaining(context.Background(), "conv-e")
	require.NoError(t, err)
	require.Equal(t, 10, left)
}

func TestAskAssistantFailureKeepsQuotaSpent(t *testing.T) {
	f := newFixture(t, 10)
	f.assistant.err = errors.New("upstream 500")
	res := f.d.HandleChatMessage(context.Background(), "conv-x", "/ask hi")
	require.Equal(t, KindFailed, res.Kind)
	require.Equal(t, ReasonAssistant, res.Reason)

	left, err := f.limiter.Remaining(context.Background(), "conv-x")
	require.NoError(t, err)
	require.Equal(t, 9, left)
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher(Deps{})
	require.Error(t, err)
}

func TestCallbackAfterInterruptedTurn(t *testing.T) {
	f := newFixture(t, 10)
	g := domain.NewGame("conv-half", time.Now())
	b, err := domain.ParseBoard("X--------")
	require.NoError(t, err)
	g.Board = b
	g.CurrentTurn = domain.Bot
	g, err = f.backend.Games().Save(context.Background(), g)
	require.NoError(t, err)

	res := f.d.HandleCallback(context.Background(), g.ID, 8)
	require.Equal(t, KindOK, res.Kind)

	after, err := f.backend.Games().LoadByID(context.Background(), g.ID)
	require.NoError(t, err)
	require.Equal(t, "X-O-O---X", after.Board.String())
	require.Equal(t, domain.Player, after.CurrentTurn)
	require.NotNil(t, f.notifier.last(t).grid)
}

func TestRejectionReasons(t *testing.T) {
	require.Equal(t, ReasonCellOccupied, rejectionReason(domain.ErrCellOccupied))
	require.Equal(t, ReasonInvalidPosition, rejectionReason(domain.ErrInvalidPosition))
	require.Equal(t, ReasonNotPlayersTurn, rejectionReason(domain.ErrNotPlayersTurn))
	require.Equal(t, ReasonGameFinished, rejectionReason(domain.ErrGameFinished))

	text := xopresenter.NewFormatter(nil, "/restart", "/ask").Rejection(domain.ErrNotPlayersTurn)
	require.Equal(t, domain.ErrNotPlayersTurn.Error(), text)
}
