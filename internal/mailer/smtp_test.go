package mailer

import (
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"sync"
	"testing"
)

// scriptedServer answers one SMTP conversation over conn, recording
// every command line. dataReply is the response to the end of a DATA
// exchange.
func scriptedServer(conn net.Conn, dataReply string, mu *sync.Mutex, cmds *[]string) {
	tp := textproto.NewConn(conn)
	defer tp.Close()

	tp.PrintfLine("220 fake ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		mu.Lock()
		*cmds = append(*cmds, line)
		mu.Unlock()

		switch {
		case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
			tp.PrintfLine("250 fake")
		case strings.HasPrefix(line, "MAIL"), strings.HasPrefix(line, "RCPT"), line == "RSET":
			tp.PrintfLine("250 OK")
		case line == "DATA":
			tp.PrintfLine("354 go ahead")
			for {
				body, err := tp.ReadLine()
				if err != nil {
					return
				}
				if body == "." {
					break
				}
			}
			tp.PrintfLine(dataReply)
		case line == "QUIT":
			tp.PrintfLine("221 bye")
			return
		}
	}
}

func newScriptedSession(t *testing.T, dataReply string) (*smtpSession, *sync.Mutex, *[]string) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	var mu sync.Mutex
	cmds := []string{}
	go scriptedServer(serverConn, dataReply, &mu, &cmds)

	client, err := smtp.NewClient(clientConn, "fake")
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })
	return &smtpSession{client: client}, &mu, &cmds
}

func TestSendDeliversOverTheWire(t *testing.T) {
	session, mu, cmds := newScriptedSession(t, "250 accepted")

	err := session.Send("campaigns@example.com", []string{"alice@example.com"}, []byte("hello"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	var seen []string
	for _, c := range *cmds {
		seen = append(seen, strings.Fields(c)[0])
	}
	want := []string{"EHLO", "MAIL", "RCPT", "DATA"}
	if len(seen) != len(want) {
		t.Fatalf("commands = %v, want %v", *cmds, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("command %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestSendResetsSessionAfterRejectedData(t *testing.T) {
	session, mu, cmds := newScriptedSession(t, "552 message rejected")

	err := session.Send("campaigns@example.com", []string{"alice@example.com"}, []byte("hello"))
	if err == nil {
		t.Fatal("expected the DATA rejection back")
	}
	if !IsPermanent(err) {
		t.Errorf("552 should classify as permanent, got %v", err)
	}

	// The next recipient reuses this session; the failed transaction
	// must have been rolled back with RSET.
	mu.Lock()
	defer mu.Unlock()
	last := (*cmds)[len(*cmds)-1]
	if last != "RSET" {
		t.Errorf("trailing command = %q, want RSET (full exchange: %v)", last, *cmds)
	}
}

func TestDomainOf(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"alice@example.com", "example.com"},
		{"no-at-sign", "no-at-sign"},
		{"nested@tag@example.org", "example.org"},
	}
	for _, c := range cases {
		if got := DomainOf(c.in); got != c.want {
			t.Errorf("DomainOf(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(&textproto.Error{Code: 550, Msg: "no such user"}) {
		t.Error("550 is permanent")
	}
	if IsPermanent(&textproto.Error{Code: 451, Msg: "try again"}) {
		t.Error("451 is transient")
	}
	if IsPermanent(nil) {
		t.Error("nil is not an SMTP failure")
	}
}
