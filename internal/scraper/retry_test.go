package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/invoice-scraper/internal/browser/browsertest"
	"github.com/shehryarbajwa/invoice-scraper/internal/session"
	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

// script replaces single attempts with canned outcomes, repeating the last one
type script struct {
	outcomes []models.ScrapeOutcome
	calls    []models.ScrapeRequest
	onCall   func(n int)
}

func (s *script) extract(_ context.Context, req models.ScrapeRequest) models.ScrapeOutcome {
	s.calls = append(s.calls, req)
	n := len(s.calls)
	if s.onCall != nil {
		s.onCall(n)
	}
	if n > len(s.outcomes) {
		return s.outcomes[len(s.outcomes)-1]
	}
	return s.outcomes[n-1]
}

func succeeded(id string) models.ScrapeOutcome {
	return models.ScrapeOutcome{Success: true, OrderID: id, InvoiceNumber: "INV-DE-" + id, FilePath: "/tmp/" + id + ".pdf"}
}

func failed(id string, kind models.ErrorKind, msg string) models.ScrapeOutcome {
	return models.Failure(id, "", kind, msg)
}

func TestWithRetry_SucceedsOnThirdAttempt(t *testing.T) {
	f := newFixture(t)
	sc := &script{outcomes: []models.ScrapeOutcome{
		failed("1", models.ErrorPageLoad, "first"),
		failed("1", models.ErrorDownloadTimeout, "second"),
		succeeded("1"),
	}}
	f.scraper.extract = sc.extract

	out := f.scraper.WithRetry(context.Background(), models.ScrapeRequest{OrderID: "1"})

	assert.True(t, out.Success)
	assert.Len(t, sc.calls, 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, f.clk.Sleeps())
}

func TestWithRetry_DefinitiveFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		out  models.ScrapeOutcome
	}{
		{"needs login", failed("1", models.ErrorNeedsLogin, models.MsgSessionExpired)},
		{"not generated", failed("1", models.ErrorNotGenerated, MsgNotGenerated)},
		{"cancelled", failed("1", models.ErrorCancelled, models.MsgCancelled)},
		{"invalid order", failed("1", models.ErrorInvalidOrder, models.MsgInvalidOrderID)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sc := &script{outcomes: []models.ScrapeOutcome{tt.out}}
			f.scraper.extract = sc.extract

			out := f.scraper.WithRetry(context.Background(), models.ScrapeRequest{OrderID: "1"})

			assert.Len(t, sc.calls, 1)
			assert.Equal(t, tt.out, out)
			assert.Empty(t, f.clk.Sleeps())
		})
	}
}

func TestWithRetry_ExhaustedKeepsLastError(t *testing.T) {
	f := newFixture(t)
	last := failed("1", models.ErrorLinkNotFound, MsgLinkNotFound)
	last.ScreenshotPath = "/tmp/shot.png"
	sc := &script{outcomes: []models.ScrapeOutcome{
		failed("1", models.ErrorPageLoad, MsgOrderLoadFailed),
		failed("1", models.ErrorPageLoad, MsgOrderLoadFailed),
		last,
	}}
	f.scraper.extract = sc.extract

	out := f.scraper.WithRetry(context.Background(), models.ScrapeRequest{OrderID: "1", OrderName: "#1"})

	assert.Len(t, sc.calls, 3)
	assert.False(t, out.Success)
	assert.Equal(t, "1", out.OrderID)
	assert.Equal(t, "#1", out.OrderName)
	assert.Equal(t, MsgLinkNotFound, out.Error)
	assert.Equal(t, models.ErrorLinkNotFound, out.ErrorKind)
	assert.Equal(t, "/tmp/shot.png", out.ScreenshotPath)
	assert.Len(t, f.clk.Sleeps(), 2)
}

func TestWithRetry_UnknownErrorWhenNoMessage(t *testing.T) {
	f := newFixture(t)
	sc := &script{outcomes: []models.ScrapeOutcome{failed("1", models.ErrorPageLoad, "")}}
	f.scraper.extract = sc.extract

	out := f.scraper.WithRetry(context.Background(), models.ScrapeRequest{OrderID: "1"})

	assert.Equal(t, MsgUnknownFailure, out.Error)
	assert.Equal(t, models.ErrorInternal, out.ErrorKind)
}

func TestWithRetry_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	sc := &script{outcomes: []models.ScrapeOutcome{succeeded("1")}}
	f.scraper.extract = sc.extract
	f.state.Cancel()

	out := f.scraper.WithRetry(context.Background(), models.ScrapeRequest{OrderID: "1"})

	assert.Empty(t, sc.calls)
	assert.Equal(t, models.ErrorCancelled, out.ErrorKind)
	assert.Equal(t, models.MsgCancelled, out.Error)
}

func TestWithRetry_CancelledBetweenAttempts(t *testing.T) {
	f := newFixture(t)
	sc := &script{outcomes: []models.ScrapeOutcome{failed("1", models.ErrorPageLoad, "boom")}}
	sc.onCall = func(int) { f.state.Cancel() }
	f.scraper.extract = sc.extract

	out := f.scraper.WithRetry(context.Background(), models.ScrapeRequest{OrderID: "1"})

	assert.Len(t, sc.calls, 1)
	assert.Equal(t, models.ErrorCancelled, out.ErrorKind)
}

func TestWithRetry_StopsWhenContextDone(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	sc := &script{outcomes: []models.ScrapeOutcome{failed("1", models.ErrorPageLoad, "boom")}}
	sc.onCall = func(int) { cancel() }
	f.scraper.extract = sc.extract

	out := f.scraper.WithRetry(ctx, models.ScrapeRequest{OrderID: "1"})

	assert.Len(t, sc.calls, 1)
	assert.Equal(t, "boom", out.Error)
}

// loggedIn serves the store home so the batch login check passes
func loggedIn(f *fixture) {
	f.engine.SetSite(testStore, &browsertest.Site{Selectors: []string{session.AdminMarkerSelector}})
}

func TestRunBatch_StopsAtLogin(t *testing.T) {
	f := newFixture(t)
	loggedIn(f)
	sc := &script{}
	f.scraper.extract = func(ctx context.Context, req models.ScrapeRequest) models.ScrapeOutcome {
		sc.calls = append(sc.calls, req)
		if req.OrderID == "2" {
			return failed("2", models.ErrorNeedsLogin, models.MsgSessionExpired)
		}
		return succeeded(req.OrderID)
	}

	out := f.scraper.RunBatch(context.Background(), []models.ScrapeRequest{{OrderID: "1"}, {OrderID: "2"}, {OrderID: "3"}})

	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, 3, out.Total)
	assert.Equal(t, 1, out.Successful)
	assert.Equal(t, 2, out.Failed)
	assert.True(t, out.NeedsLogin)
	require.Len(t, out.Results, 2)
	assert.True(t, out.Results[0].Success)
	assert.True(t, out.Results[1].NeedsLogin)
	assert.Len(t, sc.calls, 2, "order 3 is never attempted")
}

func TestRunBatch_ContinuesPastOrdinaryFailures(t *testing.T) {
	f := newFixture(t)
	loggedIn(f)
	f.scraper.extract = func(ctx context.Context, req models.ScrapeRequest) models.ScrapeOutcome {
		if req.OrderID == "2" {
			return failed("2", models.ErrorNotGenerated, MsgNotGenerated)
		}
		return succeeded(req.OrderID)
	}

	out := f.scraper.RunBatch(context.Background(), []models.ScrapeRequest{{OrderID: "1"}, {OrderID: "2"}, {OrderID: "3"}})

	assert.Equal(t, 3, out.Total)
	assert.Equal(t, 2, out.Successful)
	assert.Equal(t, 1, out.Failed)
	assert.False(t, out.NeedsLogin)
	assert.Len(t, out.Results, 3)
	assert.Equal(t, out.Total, out.Successful+out.Failed)

	pages := f.engine.LastContext().Pages()
	require.Len(t, pages, 1, "idle status page is left open")
	assert.Contains(t, pages[0].URL(), "invoice-scraper-status.html")
}

func TestRunBatch_AuthenticationFails(t *testing.T) {
	f := newFixture(t)
	f.engine.SetSite(testStore, &browsertest.Site{RedirectTo: "https://accounts.shopify.com/lookup"})
	f.state.Cancel()
	sc := &script{outcomes: []models.ScrapeOutcome{succeeded("x")}}
	f.scraper.extract = sc.extract

	out := f.scraper.RunBatch(context.Background(), []models.ScrapeRequest{{OrderID: "1"}, {OrderID: "2"}})

	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 0, out.Successful)
	assert.Equal(t, 2, out.Failed)
	assert.True(t, out.NeedsLogin)
	assert.Empty(t, out.Results)
	assert.Empty(t, sc.calls)
}

func TestRunBatch_Empty(t *testing.T) {
	f := newFixture(t)
	loggedIn(f)

	out := f.scraper.RunBatch(context.Background(), nil)

	assert.Equal(t, 0, out.Total)
	assert.NotNil(t, out.Results)
	assert.False(t, out.NeedsLogin)
}
