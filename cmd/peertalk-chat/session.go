package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/peertalk/peertalk/pkg/peertalk"
)

var (
	joinColor = color.New(color.FgGreen)
	leftColor = color.New(color.FgYellow)
	msgColor  = color.New(color.FgCyan)
	errColor  = color.New(color.FgRed)
)

// session wraps a *peertalk.Context with the bits the chat REPL needs:
// callbacks that print to the terminal, and a line parser for the
// slash-commands that stand in for the verbs a daemon/CLI split would
// otherwise expose as separate invocations (connect, send, peers) —
// not meaningful here since the whole point of Poll is a single
// long-lived caller.
type session struct {
	ctx *peertalk.Context
}

func newSession(ctx *peertalk.Context) *session {
	return &session{ctx: ctx}
}

func (s *session) callbacks() peertalk.Callbacks {
	return peertalk.Callbacks{
		OnPeerDiscovered: func(id peertalk.PeerID) {
			name, _ := s.ctx.GetPeerName(id)
			joinColor.Printf("* discovered %s (id %d)\n", name, id)
		},
		OnPeerLost: func(id peertalk.PeerID) {
			leftColor.Printf("* lost peer %d\n", id)
		},
		OnPeerConnected: func(id peertalk.PeerID) {
			name, _ := s.ctx.GetPeerName(id)
			joinColor.Printf("* %s connected\n", name)
		},
		OnPeerDisconnected: func(id peertalk.PeerID, reason peertalk.DisconnectReason) {
			name, _ := s.ctx.GetPeerName(id)
			leftColor.Printf("* %s disconnected (%s)\n", name, reason)
		},
		OnMessageReceived: func(id peertalk.PeerID, payload []byte) {
			name, _ := s.ctx.GetPeerName(id)
			msgColor.Printf("<%s> %s\n", name, string(payload))
		},
		OnMessageSent: func(msgID peertalk.MessageID, id peertalk.PeerID, err error) {
			if err != nil {
				errColor.Printf("! send %d to peer %d failed: %v\n", msgID, id, err)
			}
		},
	}
}

func (s *session) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if !strings.HasPrefix(line, "/") {
		s.ctx.Broadcast([]byte(line), peertalk.PriorityNormal)
		return
	}

	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/help":
		s.printHelp()
	case "/peers":
		s.printPeers()
	case "/connect":
		s.connect(args)
	case "/disconnect":
		s.disconnect(args)
	case "/send":
		s.send(args)
	case "/quit", "/exit":
		fmt.Println("use Ctrl+C to quit")
	default:
		errColor.Printf("unknown command %q, try /help\n", cmd)
	}
}

func (s *session) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /peers                 list known peers and their state")
	fmt.Println("  /connect <name|id>     dial a discovered peer")
	fmt.Println("  /disconnect <name|id>  close a connected peer's stream")
	fmt.Println("  /send <name|id> <msg>  send a message to one peer")
	fmt.Println("  /help                  show this text")
	fmt.Println("Anything else is broadcast to every connected peer.")
}

func (s *session) printPeers() {
	peers := s.ctx.GetPeers()
	if len(peers) == 0 {
		fmt.Println("(no peers known yet)")
		return
	}
	for _, p := range peers {
		rtt := ""
		if p.RTT > 0 {
			rtt = " rtt=" + p.RTT.String()
		}
		fmt.Printf("  [%d] %-20s %-12s%s\n", p.ID, p.Name, p.State, rtt)
	}
}

// resolvePeer accepts either a peer ID or a display name.
func (s *session) resolvePeer(token string) (peertalk.PeerID, error) {
	if n, err := strconv.Atoi(token); err == nil {
		return peertalk.PeerID(n), nil
	}
	info, err := s.ctx.FindPeerByName(token)
	if err != nil {
		return 0, err
	}
	return info.ID, nil
}

func (s *session) connect(args []string) {
	if len(args) != 1 {
		errColor.Println("usage: /connect <name|id>")
		return
	}
	id, err := s.resolvePeer(args[0])
	if err != nil {
		errColor.Printf("! %v\n", err)
		return
	}
	if err := s.ctx.Connect(id); err != nil {
		errColor.Printf("! connect failed: %v\n", err)
	}
}

func (s *session) disconnect(args []string) {
	if len(args) != 1 {
		errColor.Println("usage: /disconnect <name|id>")
		return
	}
	id, err := s.resolvePeer(args[0])
	if err != nil {
		errColor.Printf("! %v\n", err)
		return
	}
	if err := s.ctx.Disconnect(id); err != nil {
		errColor.Printf("! disconnect failed: %v\n", err)
	}
}

func (s *session) send(args []string) {
	if len(args) < 2 {
		errColor.Println("usage: /send <name|id> <message>")
		return
	}
	id, err := s.resolvePeer(args[0])
	if err != nil {
		errColor.Printf("! %v\n", err)
		return
	}
	payload := strings.Join(args[1:], " ")
	if err := s.ctx.Send(id, []byte(payload), peertalk.PriorityNormal); err != nil {
		errColor.Printf("! send failed: %v\n", err)
	}
}
