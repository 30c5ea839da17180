//go:build !integration

package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guttosm/rental-manager/internal/pool"
)

const plainMessage = "From: Juan Pérez <juan@mail.com>\r\n" +
	"Subject: =?UTF-8?Q?Reserva_confirmada?=\r\n" +
	"Date: Mon, 10 Mar 2025 10:00:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Confirmo para 4 personas.\r\n"

const multipartMessage = "From: ana@mail.com\r\n" +
	"Subject: Consulta\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<p>html</p>\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"U29tb3MgMiBwZXJzb25h\r\n" +
	"cw==\r\n" +
	"--b1--\r\n"

func writeMaildir(t *testing.T, root, folder string, files map[string]string) {
	t.Helper()
	for _, sub := range []string{"new", "cur", "tmp"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, folder, sub), 0o755))
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, folder, "new", name), []byte(body), 0o644))
	}
}

func TestMaildir_Fetch(t *testing.T) {
	root := t.TempDir()
	writeMaildir(t, root, "INBOX", map[string]string{
		"1700000001.a.host": plainMessage,
		"1700000002.b.host": multipartMessage,
		".hidden":           plainMessage,
	})

	session, err := NewMaildirDialer(root, nil).Dial(context.Background())
	require.NoError(t, err)
	defer session.Close()

	msgs, err := session.Fetch(context.Background(), "INBOX", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "1700000001.a.host", msgs[0].ID)
	assert.Equal(t, "INBOX", msgs[0].Folder)
	assert.Equal(t, "Reserva confirmada", msgs[0].Subject)
	assert.Equal(t, "Confirmo para 4 personas.", msgs[0].Body)
	assert.Equal(t, 2025, msgs[0].Date.Year())

	assert.Equal(t, "Consulta", msgs[1].Subject)
	assert.Equal(t, "Somos 2 personas", msgs[1].Body)
}

func TestMaildir_FetchLimitKeepsNewest(t *testing.T) {
	root := t.TempDir()
	writeMaildir(t, root, "INBOX", map[string]string{
		"1.m": plainMessage,
		"2.m": plainMessage,
		"3.m": plainMessage,
	})

	session, err := NewMaildirDialer(root, nil).Dial(context.Background())
	require.NoError(t, err)

	msgs, err := session.Fetch(context.Background(), "INBOX", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2.m", msgs[0].ID)
	assert.Equal(t, "3.m", msgs[1].ID)
}

func TestMaildir_Errors(t *testing.T) {
	root := t.TempDir()
	writeMaildir(t, root, "INBOX", nil)
	ctx := context.Background()

	_, err := NewMaildirDialer(filepath.Join(root, "missing"), nil).Dial(ctx)
	require.Error(t, err)
	assert.True(t, pool.IsBackendError(err))

	session, err := NewMaildirDialer(root, nil).Dial(ctx)
	require.NoError(t, err)

	_, err = session.Fetch(ctx, "Archive", 10)
	require.Error(t, err)
	assert.False(t, pool.IsBackendError(err))

	_, err = session.Fetch(ctx, "../etc", 10)
	require.Error(t, err)

	require.NoError(t, session.Close())
	_, err = session.Fetch(ctx, "INBOX", 10)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.True(t, pool.IsBackendError(err))
}

func TestMailService_FetchFoldersIsolatesFailures(t *testing.T) {
	root := t.TempDir()
	writeMaildir(t, root, "INBOX", map[string]string{"1.m": plainMessage})
	writeMaildir(t, root, "Airbnb", map[string]string{"1.m": multipartMessage, "2.m": plainMessage})

	svc, err := NewMailService(NewMaildirDialer(root, nil), MailConfig{Sessions: 2, AcquireTimeout: time.Second})
	require.NoError(t, err)
	defer svc.Close()

	results := svc.FetchFolders(context.Background(), []string{"INBOX", "Missing", "Airbnb"})
	require.Len(t, results, 3)

	assert.Equal(t, "INBOX", results[0].Folder)
	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Messages, 1)

	assert.Equal(t, "Missing", results[1].Folder)
	assert.Error(t, results[1].Err)
	assert.NotEmpty(t, results[1].Error)

	assert.NoError(t, results[2].Err)
	assert.Len(t, results[2].Messages, 2)

	assert.Equal(t, 0, svc.Pool().Stats().InUse)
}

func TestMailService_FetchAndProcess(t *testing.T) {
	root := t.TempDir()
	writeMaildir(t, root, "INBOX", map[string]string{"1.m": plainMessage, "2.m": multipartMessage})

	svc, err := NewMailService(NewMaildirDialer(root, nil), MailConfig{Sessions: 1})
	require.NoError(t, err)
	defer svc.Close()

	text, _ := newTestTextService(NewPatternExtractor(nil), true)
	got, err := svc.FetchAndProcess(context.Background(), []string{"INBOX", "Missing"}, text)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 4, got[0].Entities.Capacity)
	assert.True(t, got[0].Entities.Confirmed)
	assert.Equal(t, 2, got[1].Entities.Capacity)
	assert.False(t, got[1].Entities.Confirmed)
}

type flakyDialer struct {
	dials atomic.Int32
}

type flakySession struct {
	id     int32
	closed atomic.Bool
}

func (d *flakyDialer) Dial(context.Context) (MailSession, error) {
	return &flakySession{id: d.dials.Add(1)}, nil
}

func (s *flakySession) Fetch(_ context.Context, folder string, _ int) ([]Message, error) {
	// The first session drops its connection on its first use.
	if s.id == 1 {
		return nil, pool.Unhealthy(errors.New("connection reset"))
	}
	return []Message{{ID: "1", Folder: folder}}, nil
}

func (s *flakySession) Close() error {
	s.closed.Store(true)
	return nil
}

func TestMailService_RetriesOnFreshSession(t *testing.T) {
	dialer := &flakyDialer{}
	svc, err := NewMailService(dialer, MailConfig{Sessions: 1, AcquireTimeout: time.Second})
	require.NoError(t, err)
	defer svc.Close()

	results := svc.FetchFolders(context.Background(), []string{"INBOX"})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Len(t, results[0].Messages, 1)
	assert.Equal(t, int32(2), dialer.dials.Load())
}

func TestMailService_CleanupIdle(t *testing.T) {
	svc, err := NewMailService(&flakyDialer{}, MailConfig{Sessions: 2, IdleTimeout: time.Nanosecond})
	require.NoError(t, err)
	defer svc.Close()

	lease, err := svc.Pool().Acquire(context.Background(), 0)
	require.NoError(t, err)
	lease.Release()
	time.Sleep(time.Millisecond)

	assert.Equal(t, 1, svc.CleanupIdle())
	assert.Equal(t, 0, svc.Pool().Stats().Idle)
}

func TestNewMailService_RequiresDialer(t *testing.T) {
	_, err := NewMailService(nil, MailConfig{})
	assert.Error(t, err)
}
