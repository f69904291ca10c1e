package mailer

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipmail/slipmail/internal/model"
)

// smtpStub is a minimal plaintext SMTP server that accepts every command
// and records the envelope and DATA of each delivered message.
type smtpStub struct {
	ln net.Listener

	mu    sync.Mutex
	from  []string
	rcpt  []string
	data  []string
	quits int
}

func newSMTPStub(t *testing.T) *smtpStub {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &smtpStub{ln: ln}
	t.Cleanup(func() { ln.Close() })
	go s.accept()
	return s
}

func (s *smtpStub) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *smtpStub) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *smtpStub) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	reply("220 localhost ESMTP stub")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO":
			reply("250-localhost")
			reply("250 8BITMIME")
		case "MAIL":
			s.mu.Lock()
			s.from = append(s.from, line)
			s.mu.Unlock()
			reply("250 OK")
		case "RCPT":
			s.mu.Lock()
			s.rcpt = append(s.rcpt, line)
			s.mu.Unlock()
			reply("250 OK")
		case "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			s.mu.Lock()
			s.data = append(s.data, body.String())
			s.mu.Unlock()
			reply("250 OK queued")
		case "QUIT":
			s.mu.Lock()
			s.quits++
			s.mu.Unlock()
			reply("221 Bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func (s *smtpStub) snapshot() (from, rcpt, data []string, quits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.from...), append([]string(nil), s.rcpt...), append([]string(nil), s.data...), s.quits
}

func stubMailer(t *testing.T, port int) *Mailer {
	t.Helper()
	m, err := New(Config{
		Host:        "127.0.0.1",
		Port:        port,
		TLSPolicy:   "none",
		Timeout:     2 * time.Second,
		FromAddress: "payroll@co.com",
		FromName:    "Payroll",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestSendDeliversToServer(t *testing.T) {
	t.Parallel()
	stub := newSMTPStub(t)
	m := stubMailer(t, stub.port())

	err := m.Send(context.Background(), &model.Message{
		FromName:    "Payroll",
		FromAddress: "payroll@co.com",
		To:          "ann@co.com",
		Cc:          []string{"hr@co.com"},
		Subject:     "Your payslip",
		Body:        "Attached.",
		Attachments: []model.Attachment{{
			Name:        "march.pdf - page 1",
			ContentType: model.PDFContentType,
			Content:     []byte("%PDF-1.4 fake"),
		}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	from, rcpt, data, _ := stub.snapshot()
	if len(from) != 1 || !strings.Contains(from[0], "<payroll@co.com>") {
		t.Errorf("MAIL FROM = %v", from)
	}
	joined := strings.Join(rcpt, "\n")
	for _, want := range []string{"<ann@co.com>", "<hr@co.com>"} {
		if !strings.Contains(joined, want) {
			t.Errorf("RCPT TO missing %s: %v", want, rcpt)
		}
	}
	if len(data) != 1 {
		t.Fatalf("delivered messages = %d, want 1", len(data))
	}
	if !strings.Contains(data[0], "Subject: Your payslip") {
		t.Errorf("DATA missing subject:\n%s", data[0])
	}
	if !strings.Contains(data[0], "march.pdf - page 1") {
		t.Errorf("DATA missing attachment name:\n%s", data[0])
	}
}

func TestVerifyConnectsAndQuits(t *testing.T) {
	t.Parallel()
	stub := newSMTPStub(t)
	m := stubMailer(t, stub.port())

	if err := m.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	_, _, data, _ := stub.snapshot()
	if len(data) != 0 {
		t.Errorf("Verify delivered %d messages, want 0", len(data))
	}
}

func TestVerifyClosedPort(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := stubMailer(t, port)
	err = m.Verify(context.Background())
	if err == nil {
		t.Fatal("Verify against a closed port succeeded")
	}
	if errors.Is(err, model.ErrTransportMisconfigured) {
		t.Errorf("dial failure reported as misconfiguration: %v", err)
	}
	if !strings.Contains(err.Error(), "127.0.0.1:"+strconv.Itoa(port)) {
		t.Errorf("error %q does not name the server", err)
	}
}

func TestSendClosedPort(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := stubMailer(t, port)
	err = m.Send(context.Background(), &model.Message{
		FromAddress: "payroll@co.com",
		To:          "ann@co.com",
		Subject:     "s",
		Body:        "b",
	})
	if err == nil || !strings.Contains(err.Error(), "ann@co.com") {
		t.Fatalf("Send = %v, want error naming recipient", err)
	}
}
