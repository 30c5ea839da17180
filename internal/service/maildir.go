package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/guttosm/rental-manager/internal/objpool"
	"github.com/guttosm/rental-manager/internal/pool"
)

// ErrSessionClosed is returned by a closed mailbox session.
var ErrSessionClosed = errors.New("mail session closed")

// MaildirDialer opens sessions on a local Maildir tree. Each folder is a
// directory under Root holding new/ (unseen) and cur/ (seen) messages.
type MaildirDialer struct {
	Root    string
	Buffers *objpool.Pool[*bytes.Buffer]
}

// NewMaildirDialer creates a dialer for root. buffers pools message read
// buffers; nil allocates a private pool.
func NewMaildirDialer(root string, buffers *objpool.Pool[*bytes.Buffer]) *MaildirDialer {
	if buffers == nil {
		buffers = objpool.NewBufferPool("maildir_buffers", 8)
	}
	return &MaildirDialer{Root: root, Buffers: buffers}
}

// Dial verifies the Maildir root and opens a session on it.
func (d *MaildirDialer) Dial(ctx context.Context) (MailSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(d.Root)
	if err != nil {
		return nil, pool.Unhealthy(fmt.Errorf("maildir %s: %w", d.Root, err))
	}
	if !info.IsDir() {
		return nil, pool.Unhealthy(fmt.Errorf("maildir %s: not a directory", d.Root))
	}
	return &maildirSession{root: d.Root, buffers: d.Buffers}, nil
}

type maildirSession struct {
	root    string
	buffers *objpool.Pool[*bytes.Buffer]
	closed  atomic.Bool
}

func (s *maildirSession) Fetch(ctx context.Context, folder string, limit int) ([]Message, error) {
	if s.closed.Load() {
		return nil, pool.Unhealthy(ErrSessionClosed)
	}
	if folder == "" || strings.Contains(folder, "..") || filepath.IsAbs(folder) {
		return nil, fmt.Errorf("invalid folder %q", folder)
	}
	if _, err := os.Stat(s.root); err != nil {
		return nil, pool.Unhealthy(fmt.Errorf("maildir %s: %w", s.root, err))
	}

	dir := filepath.Join(s.root, folder, "new")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", folder, err)
	}

	files := make([]os.DirEntry, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			files = append(files, e)
		}
	}
	// Maildir names start with the delivery time, so name order is arrival order.
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
	if limit > 0 && len(files) > limit {
		files = files[len(files)-limit:]
	}

	messages := make([]Message, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := s.read(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("read message %s/%s: %w", folder, f.Name(), err)
		}
		msg.ID = f.Name()
		msg.Folder = folder
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *maildirSession) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *maildirSession) read(path string) (Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return Message{}, err
	}
	defer f.Close()

	m, err := mail.ReadMessage(f)
	if err != nil {
		return Message{}, err
	}

	buf := s.buffers.Get()
	defer s.buffers.Put(buf)
	if err := textBody(buf, m.Header.Get("Content-Type"), m.Header.Get("Content-Transfer-Encoding"), m.Body); err != nil {
		return Message{}, err
	}

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(m.Header.Get("Subject"))
	if err != nil {
		subject = m.Header.Get("Subject")
	}
	msg := Message{
		Subject: subject,
		From:    m.Header.Get("From"),
		Body:    strings.TrimSpace(buf.String()),
	}
	if date, err := m.Header.Date(); err == nil {
		msg.Date = date
	}
	return msg, nil
}

// textBody writes the first text/plain, non-attachment part of a message
// body to w.
func textBody(w io.Writer, contentType, encoding string, body io.Reader) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || contentType == "" {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
			if disposition == "attachment" {
				continue
			}
			partType := part.Header.Get("Content-Type")
			if partType == "" {
				partType = "text/plain"
			}
			pt, _, _ := mime.ParseMediaType(partType)
			if pt != "text/plain" && !strings.HasPrefix(pt, "multipart/") {
				continue
			}
			// multipart.Part already decodes quoted-printable.
			return textBody(w, partType, part.Header.Get("Content-Transfer-Encoding"), part)
		}
	}
	if mediaType != "text/plain" {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, newlineStripper{body})
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	}
	_, err = io.Copy(w, body)
	return err
}

// newlineStripper drops CR and LF so line-wrapped base64 decodes.
type newlineStripper struct {
	r io.Reader
}

func (n newlineStripper) Read(p []byte) (int, error) {
	for {
		c, err := n.r.Read(p)
		k := 0
		for _, b := range p[:c] {
			if b != '\r' && b != '\n' {
				p[k] = b
				k++
			}
		}
		if k > 0 || err != nil {
			return k, err
		}
	}
}
