package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tokenchat/tokenchat/internal/chat"
	"github.com/tokenchat/tokenchat/internal/client"
	"github.com/tokenchat/tokenchat/internal/preview"
	"github.com/tokenchat/tokenchat/internal/render"
	"github.com/tokenchat/tokenchat/internal/session"
	"github.com/tokenchat/tokenchat/pkg/protocol"
)

func newChatCmd(cfg *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the shared room",
		Long: `Join the shared broadcast room. Plain input is sent to the room;
slash commands drive presence, tabs, and the private-chat handshake:

  /who                    show who is online
  /preview                show the latest room messages
  /request <user> [tok]   ask a user for a private chat
  /accept <user>          accept a pending invite
  /deny <user>            deny a pending invite
  /open <token>           open or focus a private tab
  /switch <token>         focus an open tab
  /close <token>          close a tab
  /tabs                   list open tabs
  /msg <text>             send to the focused private tab
  /quit                   leave`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if watch, _ := cmd.Flags().GetBool("preview"); watch {
				return runPreview(cmd, cfg)
			}
			return runChat(cmd, cfg)
		},
	}

	cmd.Flags().String("identity", "", "chat under this name, skipping the stored profile")
	cmd.Flags().Bool("preview", false, "watch the latest room messages without signing in")
	return cmd
}

func runChat(cmd *cobra.Command, cfg *viper.Viper) error {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	identity, _ := cmd.Flags().GetString("identity")
	if identity == "" {
		store, err := session.NewStore(cfg)
		if err != nil {
			return err
		}
		identity, err = session.Resolve(store, &terminalPrompter{in: in, out: out}, time.Now)
		if err != nil {
			return err
		}
	}

	pending := &pendingInvites{out: out, decisions: make(map[string]*chat.Decision)}
	ctrl := chat.New(identity, chat.WebSocketDialer(wsBaseURL(cfg)), pending)

	ctx := cmd.Context()
	if err := ctrl.OpenBroadcast(ctx); err != nil {
		return fmt.Errorf("join %s: %w", cfg.GetString(serverAddrKey), err)
	}

	fmt.Fprintf(out, "connected to %s as %s\n", cfg.GetString(serverAddrKey), identity)

	recent := &recentBroadcast{buf: preview.New(preview.DefaultCapacity)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(out, ctrl, recent)
	}()

	repl(ctx, in, out, ctrl, pending, recent)

	ctrl.Close()
	<-done
	return nil
}

// runPreview joins the room anonymously and prints the rolling tail of
// recent messages, the landing view shown before a user signs in. No
// session is created or touched.
func runPreview(cmd *cobra.Command, cfg *viper.Viper) error {
	identity := "preview-" + uuid.NewString()[:8]
	conn, err := client.Dial(cmd.Context(), wsBaseURL(cfg), client.Broadcast(), identity)
	if err != nil {
		return fmt.Errorf("join %s: %w", cfg.GetString(serverAddrKey), err)
	}
	defer conn.Close()

	return watchPreview(cmd.Context(), cmd.OutOrStdout(), conn)
}

// watchPreview feeds broadcast chat frames through a preview buffer
// until the context ends or the connection closes.
func watchPreview(ctx context.Context, out io.Writer, conn *client.Conn) error {
	buf := preview.New(preview.DefaultCapacity)
	for {
		select {
		case f, ok := <-conn.Frames():
			if !ok {
				return nil
			}
			if f.Type != protocol.TypeChat {
				continue
			}
			buf.Push(f)
			lines := buf.Render()
			fmt.Fprintln(out, lines[len(lines)-1])
		case <-ctx.Done():
			return nil
		}
	}
}

// printEvents renders controller notifications until the controller
// closes.
func printEvents(out io.Writer, ctrl *chat.Controller, recent *recentBroadcast) {
	for e := range ctrl.Events() {
		switch e.Kind {
		case chat.EventMessage:
			if e.Room.IsBroadcast() {
				recent.push(e.Frame)
			}
			var node render.Node
			if e.Frame.Message != "" {
				node = render.System(e.Frame.Message)
			} else {
				node = render.Message(e.Frame, ctrl.Identity())
			}
			printNode(out, e.Room.String(), node)
		case chat.EventPresence:
			fmt.Fprintf(out, "online: %s\n", strings.Join(e.Users, ", "))
		case chat.EventTabOpened:
			fmt.Fprintf(out, "private room %s opened and focused\n", e.Room.Token())
		case chat.EventTabClosed:
			fmt.Fprintf(out, "private room %s closed\n", e.Room.Token())
		case chat.EventDisconnected:
			fmt.Fprintf(out, "disconnected from %s\n", e.Room)
		case chat.EventInviteAccepted:
			fmt.Fprintf(out, "%s accepted your private request (token %s)\n", e.Invite.To, e.Invite.Token)
		case chat.EventInviteDenied:
			fmt.Fprintf(out, "%s denied your private request\n", e.Invite.To)
		}
	}
}

func printNode(out io.Writer, room string, node render.Node) {
	switch node.Variant {
	case render.VariantSystem:
		fmt.Fprintf(out, "(%s) *** %s\n", room, node.Body)
	default:
		fmt.Fprintf(out, "(%s) %s: %s\n", room, node.Meta, node.Body)
	}
}

func repl(ctx context.Context, in *bufio.Reader, out io.Writer, ctrl *chat.Controller, pending *pendingInvites, recent *recentBroadcast) {
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := ctrl.SendChat(line); err != nil {
				fmt.Fprintf(out, "send failed: %v\n", err)
			}
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit":
			return
		case "/who":
			fmt.Fprintf(out, "online: %s\n", strings.Join(ctrl.Presence(), ", "))
		case "/preview":
			lines := recent.render()
			if len(lines) == 0 {
				fmt.Fprintln(out, "no recent room messages")
			}
			for _, l := range lines {
				fmt.Fprintln(out, l)
			}
		case "/request":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: /request <user> [token]")
				continue
			}
			tok := ""
			if len(fields) > 2 {
				tok = fields[2]
			}
			if err := ctrl.RequestPrivate(fields[1], tok); err != nil {
				fmt.Fprintf(out, "request failed: %v\n", err)
			} else {
				fmt.Fprintf(out, "request sent to %s\n", fields[1])
			}
		case "/accept":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: /accept <user>")
				continue
			}
			pending.accept(ctx, out, fields[1])
		case "/deny":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: /deny <user>")
				continue
			}
			pending.deny(out, fields[1])
		case "/open":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: /open <token>")
				continue
			}
			if err := ctrl.EnsureTab(ctx, fields[1]); err != nil {
				fmt.Fprintf(out, "open failed: %v\n", err)
			}
		case "/switch":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: /switch <token>")
				continue
			}
			if err := ctrl.SwitchTo(fields[1]); err != nil {
				fmt.Fprintf(out, "switch failed: %v\n", err)
			}
		case "/close":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: /close <token>")
				continue
			}
			if err := ctrl.CloseTab(fields[1]); err != nil {
				fmt.Fprintf(out, "close failed: %v\n", err)
			}
		case "/tabs":
			tabs := ctrl.Tabs()
			if len(tabs) == 0 {
				fmt.Fprintln(out, "no open tabs")
			}
			for _, t := range tabs {
				marker := " "
				if t.Active {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s (%s)\n", marker, t.Token, t.State)
			}
		case "/msg":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: /msg <text>")
				continue
			}
			if err := ctrl.SendPrivate(strings.TrimSpace(strings.TrimPrefix(line, "/msg"))); err != nil {
				fmt.Fprintf(out, "private send failed: %v\n", err)
			}
		default:
			fmt.Fprintf(out, "unknown command %s\n", fields[0])
		}
	}
}

// recentBroadcast guards a preview buffer shared between the event
// printer and the REPL.
type recentBroadcast struct {
	mu  sync.Mutex
	buf *preview.Buffer
}

func (r *recentBroadcast) push(f protocol.Frame) {
	r.mu.Lock()
	r.buf.Push(f)
	r.mu.Unlock()
}

func (r *recentBroadcast) render() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Render()
}

// pendingInvites holds unresolved inbound invites keyed by the inviting
// identity so the REPL can resolve them later.
type pendingInvites struct {
	out       io.Writer
	mu        sync.Mutex
	decisions map[string]*chat.Decision
}

// RequestDecision implements chat.DecisionRequester.
func (p *pendingInvites) RequestDecision(d *chat.Decision) {
	inv := d.Invite()
	p.mu.Lock()
	p.decisions[inv.From] = d
	p.mu.Unlock()
	fmt.Fprintf(p.out, "%s invites you to a private chat (token %s): /accept %s or /deny %s\n",
		inv.From, inv.Token, inv.From, inv.From)
}

func (p *pendingInvites) take(from string) *chat.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.decisions[from]
	delete(p.decisions, from)
	return d
}

func (p *pendingInvites) accept(ctx context.Context, out io.Writer, from string) {
	d := p.take(from)
	if d == nil {
		fmt.Fprintf(out, "no pending invite from %s\n", from)
		return
	}
	if err := d.Accept(ctx); err != nil {
		fmt.Fprintf(out, "accept failed: %v\n", err)
	}
}

func (p *pendingInvites) deny(out io.Writer, from string) {
	d := p.take(from)
	if d == nil {
		fmt.Fprintf(out, "no pending invite from %s\n", from)
		return
	}
	if err := d.Deny(); err != nil {
		fmt.Fprintf(out, "deny failed: %v\n", err)
	}
}

// terminalPrompter implements the session bootstrap wizard on the
// terminal.
type terminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *terminalPrompter) NewProfile() (string, string, error) {
	username, err := p.ask("Enter username: ")
	if err != nil {
		return "", "", err
	}
	password, err := p.ask(fmt.Sprintf("Set a password (min %d characters): ", session.MinPasswordLen))
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

func (p *terminalPrompter) ContinueSession(username string) (bool, error) {
	answer, err := p.ask(fmt.Sprintf("Continue as %q? [y/N]: ", username))
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

func (p *terminalPrompter) Password() (string, error) {
	return p.ask("Enter your password: ")
}

func (p *terminalPrompter) ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
