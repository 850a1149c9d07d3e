// Package trigger implements the Trigger Handler (C8): inbound-message
// normalization, routing precedence (reactions, flow match, slash
// command, natural-language fallback), conversation memory, and the
// approval-reaction lifecycle. Grounded on internal/gateway's
// normalizer.go (message normalization keys), approval_policy.go
// (policy assembly), and message_service.go (adapter dispatch shape),
// read from the teacher before that package was trimmed from the tree —
// reimplemented here at kernel scope rather than kept verbatim, since
// the teacher's gateway also carried UI/provisioning machinery the spec
// never asks for (see DESIGN.md).
package trigger

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Message is one normalized inbound event (spec §4.8).
type Message struct {
	Platform  string
	ChannelID string
	ThreadID  string
	UserID    string
	Text      string
	EventType string
	ReactionTS string
	Reaction  string
	Raw       map[string]any
}

func (m Message) conversationKey() string {
	if m.ThreadID != "" {
		return m.ChannelID + ":" + m.ThreadID
	}
	return m.ChannelID
}

// CommandBinding mirrors internal/config.CommandBinding without an
// import cycle on the config package's YAML tags.
type CommandBinding struct {
	Target      string
	Name        string
	Description string
}

// FlowDescriptor is one registered flow's routing filter (spec §6
// "Trigger matching").
type FlowDescriptor struct {
	Name     string
	Platform string
	Channels []string
	Users    []string
	Patterns []*regexp.Regexp
	order    int
}

// PendingApproval is a posted approval prompt awaiting a reaction (spec
// §4.8).
type PendingApproval struct {
	Command   string
	ChannelID string
	ThreadID  string
	UserID    string
	CreatedAt time.Time
}

// Platform is the outbound collaborator surface a Handler posts replies
// and reactions through.
type Platform interface {
	Reply(ctx context.Context, channelID, threadID, text string) (messageTS string, err error)
	AddReactions(ctx context.Context, channelID, messageTS string, reactions []string) error
	RunCommand(ctx context.Context, command string) (stdout string, stderr string, err error)
}

// FlowRunner executes a matched flow with trigger data.
type FlowRunner interface {
	Run(ctx context.Context, flowName string, data map[string]any) error
}

// AgentRunner executes a named agent/fleet target.
type AgentRunner interface {
	Execute(ctx context.Context, name, input string) (string, error)
}

// Config bounds a Handler's behavior (spec §4.8, §4.9).
type Config struct {
	DefaultAgent        string
	MaxPerUserTasks     int
	ApproveReactions    []string
	DenyReactions       []string
	AutoAckText         string
	BotUserID           string
	CanApprove          func(userID string) bool
}

func (c *Config) sanitize() {
	if c.MaxPerUserTasks <= 0 {
		c.MaxPerUserTasks = 3
	}
	if len(c.ApproveReactions) == 0 {
		c.ApproveReactions = []string{"white_check_mark", "+1", "heavy_check_mark"}
	}
	if len(c.DenyReactions) == 0 {
		c.DenyReactions = []string{"x", "-1", "no_entry"}
	}
	if c.CanApprove == nil {
		c.CanApprove = func(string) bool { return true }
	}
}

type conversationEntry struct {
	Role    string
	Content string
	TS      time.Time
}

// Handler routes inbound messages per spec §4.8's precedence order.
type Handler struct {
	cfg      Config
	platform Platform
	flows    FlowRunner
	agents   AgentRunner
	commands map[string]CommandBinding

	mu          sync.Mutex
	flowList    []FlowDescriptor
	pending     map[string]PendingApproval
	conv        map[string][]conversationEntry
	userInFlight map[string]int
}

// New builds a Handler.
func New(cfg Config, platform Platform, flows FlowRunner, agents AgentRunner, commands map[string]CommandBinding) *Handler {
	cfg.sanitize()
	return &Handler{
		cfg:          cfg,
		platform:     platform,
		flows:        flows,
		agents:       agents,
		commands:     commands,
		pending:      make(map[string]PendingApproval),
		conv:         make(map[string][]conversationEntry),
		userInFlight: make(map[string]int),
	}
}

// RegisterFlow adds a flow to the routing table; registration order
// breaks scoring ties (spec §6).
func (h *Handler) RegisterFlow(d FlowDescriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d.order = len(h.flowList)
	h.flowList = append(h.flowList, d)
}

// acquireSlot enforces the per-user concurrent-task cap.
func (h *Handler) acquireSlot(userID string) (func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.userInFlight[userID] >= h.cfg.MaxPerUserTasks {
		return nil, false
	}
	h.userInFlight[userID]++
	return func() {
		h.mu.Lock()
		h.userInFlight[userID]--
		h.mu.Unlock()
	}, true
}

// Handle routes one inbound message per spec §4.8's four-step
// precedence.
func (h *Handler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType == "reaction_added" {
		return h.handleReaction(ctx, msg)
	}

	release, ok := h.acquireSlot(msg.UserID)
	if !ok {
		_, err := h.platform.Reply(ctx, msg.ChannelID, msg.ThreadID, "overloaded: too many concurrent tasks, try again shortly")
		return err
	}
	defer release()

	if d, ok := h.matchFlow(msg); ok {
		return h.flows.Run(ctx, d.Name, map[string]any{"message": msg.Text, "channel": msg.ChannelID, "user": msg.UserID, "raw": msg.Raw})
	}

	if cmd, args, ok := parseSlashCommand(msg.Text); ok {
		if binding, ok := h.commands[cmd]; ok {
			return h.dispatchCommand(ctx, msg, binding, args)
		}
	}

	return h.fallback(ctx, msg)
}

func parseSlashCommand(text string) (cmd string, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", false
	}
	parts := strings.SplitN(text, " ", 2)
	token := strings.TrimPrefix(parts[0], "/")
	if token == parts[0] {
		return "", "", false
	}
	if len(parts) == 2 {
		rest = parts[1]
	}
	return token, rest, true
}

func (h *Handler) dispatchCommand(ctx context.Context, msg Message, binding CommandBinding, args string) error {
	if h.cfg.AutoAckText != "" {
		if _, err := h.platform.Reply(ctx, msg.ChannelID, msg.ThreadID, h.cfg.AutoAckText); err != nil {
			return err
		}
	}
	switch binding.Target {
	case "flow":
		return h.flows.Run(ctx, binding.Name, map[string]any{"args": args, "channel": msg.ChannelID, "user": msg.UserID})
	default:
		out, err := h.agents.Execute(ctx, binding.Name, args)
		if err != nil {
			return err
		}
		_, err = h.platform.Reply(ctx, msg.ChannelID, msg.ThreadID, out)
		return err
	}
}

// matchFlow implements the FlowRouter scoring of spec §6.
func (h *Handler) matchFlow(msg Message) (FlowDescriptor, bool) {
	h.mu.Lock()
	candidates := make([]FlowDescriptor, len(h.flowList))
	copy(candidates, h.flowList)
	h.mu.Unlock()

	best := -1
	var winner FlowDescriptor
	for _, d := range candidates {
		if d.Platform != "" && d.Platform != msg.Platform {
			continue
		}
		score := 10
		if len(d.Channels) > 0 {
			if !contains(d.Channels, msg.ChannelID) {
				continue
			}
			score += 100
		}
		if len(d.Users) > 0 {
			if !contains(d.Users, msg.UserID) {
				continue
			}
			score += 80
		}
		if len(d.Patterns) > 0 {
			matched := false
			for _, p := range d.Patterns {
				if p.MatchString(msg.Text) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
			score += 60
		}
		if score > best || (score == best && d.order < winner.order) {
			best = score
			winner = d
		}
	}
	if best <= 0 {
		return FlowDescriptor{}, false
	}
	return winner, true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

const maxConversationEntries = 10
const conversationRingSize = 20
const maxConversationCharsPerMessage = 500

func (h *Handler) appendConversation(msg Message, role, content string) {
	if len(content) > maxConversationCharsPerMessage {
		content = content[:maxConversationCharsPerMessage]
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	key := msg.conversationKey()
	entries := append(h.conv[key], conversationEntry{Role: role, Content: content, TS: time.Now()})
	if len(entries) > conversationRingSize {
		entries = entries[len(entries)-conversationRingSize:]
	}
	h.conv[key] = entries
}

// transcript formats the conversation history preceding the just-added
// message, capped at maxConversationEntries (spec §4.8).
func (h *Handler) transcript(msg Message, excludeLast bool) string {
	h.mu.Lock()
	entries := append([]conversationEntry(nil), h.conv[msg.conversationKey()]...)
	h.mu.Unlock()

	if excludeLast && len(entries) > 0 {
		entries = entries[:len(entries)-1]
	}
	if len(entries) > maxConversationEntries {
		entries = entries[len(entries)-maxConversationEntries:]
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Content)
	}
	return b.String()
}

func (h *Handler) fallback(ctx context.Context, msg Message) error {
	h.appendConversation(msg, "user", msg.Text)

	if h.cfg.DefaultAgent == "" {
		_, err := h.platform.Reply(ctx, msg.ChannelID, msg.ThreadID, "no command or flow matched, and no default agent is configured")
		return err
	}

	history := h.transcript(msg, true)
	input := msg.Text
	if history != "" {
		input = history + "user: " + msg.Text
	}

	out, err := h.agents.Execute(ctx, h.cfg.DefaultAgent, input)
	if err != nil {
		return err
	}
	h.appendConversation(msg, "assistant", out)

	if requiresApproval, command, ok := parseApprovalRequest(out); ok {
		return h.postApproval(ctx, msg, command, requiresApproval)
	}

	_, err = h.platform.Reply(ctx, msg.ChannelID, msg.ThreadID, out)
	return err
}

var requiresApprovalLine = regexp.MustCompile(`requires_approval:\s*true`)
var commandLine = regexp.MustCompile(`command:\s*"([^"]*)"`)

// parseApprovalRequest scans an agent's final text for the
// requires_approval/command pair (spec §4.8).
func parseApprovalRequest(text string) (requiresApproval bool, command string, ok bool) {
	if !requiresApprovalLine.MatchString(text) {
		return false, "", false
	}
	m := commandLine.FindStringSubmatch(text)
	if m == nil {
		return false, "", false
	}
	return true, m[1], true
}

func (h *Handler) postApproval(ctx context.Context, msg Message, command string, _ bool) error {
	ts, err := h.platform.Reply(ctx, msg.ChannelID, msg.ThreadID, fmt.Sprintf("approval required to run: `%s`", command))
	if err != nil {
		return err
	}
	if err := h.platform.AddReactions(ctx, msg.ChannelID, ts, []string{"white_check_mark", "x"}); err != nil {
		return err
	}
	h.mu.Lock()
	h.pending[ts] = PendingApproval{Command: command, ChannelID: msg.ChannelID, ThreadID: msg.ThreadID, UserID: msg.UserID, CreatedAt: time.Now()}
	h.mu.Unlock()
	return nil
}

func (h *Handler) handleReaction(ctx context.Context, msg Message) error {
	if msg.UserID == h.cfg.BotUserID {
		return nil
	}

	h.mu.Lock()
	pending, ok := h.pending[msg.ReactionTS]
	if ok {
		delete(h.pending, msg.ReactionTS)
	}
	h.mu.Unlock()
	if !ok {
		return nil
	}

	approve := contains(h.cfg.ApproveReactions, msg.Reaction)
	deny := contains(h.cfg.DenyReactions, msg.Reaction)
	if !approve && !deny {
		h.mu.Lock()
		h.pending[msg.ReactionTS] = pending
		h.mu.Unlock()
		return nil
	}

	if !h.cfg.CanApprove(msg.UserID) {
		h.mu.Lock()
		h.pending[msg.ReactionTS] = pending
		h.mu.Unlock()
		_, err := h.platform.Reply(ctx, pending.ChannelID, pending.ThreadID, "you are not authorized to approve this")
		return err
	}

	if deny {
		_, err := h.platform.Reply(ctx, pending.ChannelID, pending.ThreadID, "denied, command discarded")
		return err
	}

	stdout, stderr, err := h.platform.RunCommand(ctx, pending.Command)
	if err != nil {
		_, replyErr := h.platform.Reply(ctx, pending.ChannelID, pending.ThreadID, fmt.Sprintf("command failed: %s\n%s", err, stderr))
		if replyErr != nil {
			return replyErr
		}
		return nil
	}
	_, err = h.platform.Reply(ctx, pending.ChannelID, pending.ThreadID, fmt.Sprintf("```\n%s\n```", stdout))
	return err
}
