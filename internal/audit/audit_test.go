package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/internal/storage/gormrepo"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
)

func newTestRepo(t *testing.T) *gormrepo.Repository {
	t.Helper()
	repo, err := gormrepo.New("sqlite", filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	written []models.AuditAction
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Write(_ context.Context, entry *models.AuditLogEntry) error {
	<-s.release
	s.mu.Lock()
	s.written = append(s.written, entry.Action)
	s.mu.Unlock()
	return nil
}

type failingSink struct{ calls atomic.Int32 }

func (s *failingSink) Name() string { return "failing" }

func (s *failingSink) Write(context.Context, *models.AuditLogEntry) error {
	s.calls.Add(1)
	return errors.New("sink down")
}

func TestLogger_WritesToRepository(t *testing.T) {
	repo := newTestRepo(t)
	l := NewLogger(8, logger.Nop(), []Sink{NewRepositorySink(repo)})
	defer l.Close()

	entry := Success(models.AuditApprove, 7, "approved")
	entry.Meta.Counts = map[string]int{"sources": 2}
	l.Record(entry)
	l.Record(Failure(models.AuditCollect, 7, errors.New("timeout")))

	require.NoError(t, l.Flush(context.Background()))

	topicID := uint(7)
	entries, err := repo.ListAudit(context.Background(), storage.AuditFilter{TopicID: &topicID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byAction := map[models.AuditAction]*models.AuditLogEntry{}
	for _, e := range entries {
		byAction[e.Action] = e
	}
	assert.Equal(t, models.AuditSuccess, byAction[models.AuditApprove].Meta.Status)
	assert.Equal(t, 2, byAction[models.AuditApprove].Meta.Counts["sources"])
	assert.Equal(t, models.AuditFailed, byAction[models.AuditCollect].Meta.Status)
	assert.Equal(t, "timeout", byAction[models.AuditCollect].Meta.Error)
}

func TestLogger_DropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	var dropped atomic.Int32
	l := NewLogger(1, logger.Nop(), []Sink{sink}, WithDropHook(func() { dropped.Add(1) }))

	start := time.Now()
	for i := 0; i < 10; i++ {
		l.Record(Success(models.AuditDiscoveryRun, 0, "run"))
	}
	assert.Less(t, time.Since(start), time.Second, "Record must not block")
	assert.GreaterOrEqual(t, dropped.Load(), int32(8))

	close(sink.release)
	require.NoError(t, l.Close())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 10-int(dropped.Load()), len(sink.written))
}

func TestLogger_SinkErrorsAreSwallowed(t *testing.T) {
	repo := newTestRepo(t)
	failing := &failingSink{}
	l := NewLogger(4, logger.Nop(), []Sink{failing, NewRepositorySink(repo)})

	l.Record(Success(models.AuditPublish, 3, ""))
	require.NoError(t, l.Flush(context.Background()))
	require.NoError(t, l.Close())

	assert.Equal(t, int32(1), failing.calls.Load())
	entries, err := repo.ListAudit(context.Background(), storage.DefaultAuditFilter())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	l := NewLogger(0, logger.Nop(), nil)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	// recording or flushing after close is a no-op
	l.Record(Success(models.AuditDraft, 1, ""))
	assert.NoError(t, l.Flush(context.Background()))
}

func TestLogger_FlushHonorsContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	l := NewLogger(1, logger.Nop(), []Sink{sink})
	l.Record(Success(models.AuditReview, 1, ""))
	l.Record(Success(models.AuditReview, 1, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Flush(ctx), context.DeadlineExceeded)

	close(sink.release)
	require.NoError(t, l.Close())
}

func TestEntryHelpers(t *testing.T) {
	e := Success(models.AuditDiscoveryRun, 0, "done")
	assert.Nil(t, e.TopicID)
	assert.Equal(t, "done", e.Meta.Message)

	f := Failure(models.AuditDraft, 9, nil)
	require.NotNil(t, f.TopicID)
	assert.Equal(t, uint(9), *f.TopicID)
	assert.Empty(t, f.Meta.Error)
}

func TestGroupActions(t *testing.T) {
	actions, err := GroupActions("")
	require.NoError(t, err)
	assert.Nil(t, actions)

	actions, err = GroupActions("Discovery")
	require.NoError(t, err)
	assert.ElementsMatch(t, models.DiscoveryActions, actions)

	actions, err = GroupActions("editorial")
	require.NoError(t, err)
	assert.Contains(t, actions, models.AuditPublish)
	assert.NotContains(t, actions, models.AuditTopicCreated)

	_, err = GroupActions("everything")
	assert.Error(t, err)
}

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "", formatCounts(nil))
	assert.Equal(t, "created=2 reused=1", formatCounts(map[string]int{"reused": 1, "created": 2}))
}

func TestSheetsSink_CreatesSheetAndAppends(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	var appended [][]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path := r.URL.Path
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodGet && path == "/v4/spreadsheets/sheet-1":
			calls = append(calls, "get")
			_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1","sheets":[{"properties":{"title":"Sheet1"}}]}`))
		case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
			calls = append(calls, "add-sheet")
			_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1"}`))
		case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
			calls = append(calls, "read-headers")
			_, _ = w.Write([]byte(`{"range":"Audit!A1:G1"}`))
		case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
			calls = append(calls, "write-headers")
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
			calls = append(calls, "append")
			var body struct {
				Values [][]interface{} `json:"values"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			appended = append(appended, body.Values...)
			_, _ = w.Write([]byte(`{}`))
		default:
			http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	sink, err := NewSheetsSink(ctx, config.SheetsConfig{SpreadsheetID: "sheet-1"}, ratelimit.NewDefaultLimiter(), logger.Nop(),
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	entry := Success(models.AuditTopicCreated, 4, "created")
	entry.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, sink.Write(ctx, entry))
	require.NoError(t, sink.Write(ctx, Success(models.AuditTopicReused, 4, "")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"get", "add-sheet", "read-headers", "write-headers", "append", "append"}, calls)
	require.Len(t, appended, 2)
	assert.Equal(t, "2026-01-02T03:04:05Z", appended[0][0])
	assert.Equal(t, "TOPIC_CREATED", appended[0][1])
	assert.Equal(t, "4", appended[0][2])
}

func TestNewSheetsSink_RequiresCredentials(t *testing.T) {
	_, err := NewSheetsSink(context.Background(), config.SheetsConfig{SpreadsheetID: "x"}, ratelimit.NewDefaultLimiter(), logger.Nop())
	assert.Error(t, err)
}
