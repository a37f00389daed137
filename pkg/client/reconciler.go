package client

import (
	"sort"
	"sync"
)

// ConversationSummary drives one row of the conversation list.
type ConversationSummary struct {
	Key         string
	LastMessage *MessageResponse
	Unread      int64
}

type conversation struct {
	messages []MessageResponse
	byID     map[string]int
	unread   int64
	last     *MessageResponse
}

// Reconciler merges server-pushed live events with one-shot history fetches
// into per-conversation ordered lists. Messages are deduplicated by id, edits
// replace entries in place, deletes remove the id from every conversation.
// Locally initiated sends are never inserted; the server echo is the only
// append path, so the lists never diverge from server-confirmed order.
type Reconciler struct {
	mu            sync.RWMutex
	self          string
	active        string
	conversations map[string]*conversation
}

// NewReconciler constructs a reconciler for the given viewer identity.
func NewReconciler(self string) *Reconciler {
	return &Reconciler{
		self:          self,
		conversations: make(map[string]*conversation),
	}
}

func (r *Reconciler) conversationLocked(key string) *conversation {
	conv, ok := r.conversations[key]
	if !ok {
		conv = &conversation{byID: make(map[string]int)}
		r.conversations[key] = conv
	}
	return conv
}

// keyOf classifies a message into the viewer's conversation key.
func (r *Reconciler) keyOf(message MessageResponse) string {
	switch {
	case message.GroupID != "":
		return "group:" + message.GroupID
	case message.ReceiverID == "":
		return "global"
	case message.SenderID == r.self:
		return "user:" + message.ReceiverID
	default:
		return "user:" + message.SenderID
	}
}

// SetActive marks the conversation the viewer currently has open and zeroes
// its unread count.
func (r *Reconciler) SetActive(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = key
	if conv, ok := r.conversations[key]; ok {
		conv.unread = 0
	}
}

// Active returns the currently open conversation key.
func (r *Reconciler) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SeedUnread applies the unread counters delivered at login.
func (r *Reconciler) SeedUnread(counts map[string]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, count := range counts {
		r.conversationLocked(key).unread = count
	}
}

// SeedLastMessages applies the last-message summaries delivered at login.
func (r *Reconciler) SeedLastMessages(messages map[string]MessageResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, message := range messages {
		message := message
		r.conversationLocked(key).last = &message
	}
}

// ApplyHistory merges a one-shot history fetch into the conversation. Live
// messages that arrived before the fetch completed are kept; duplicates are
// collapsed by id, ordering is by server creation time.
func (r *Reconciler) ApplyHistory(payload ConversationHistoryPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv := r.conversationLocked(payload.Key)

	merged := make([]MessageResponse, 0, len(payload.Messages)+len(conv.messages))
	seen := make(map[string]struct{}, len(payload.Messages))
	for _, message := range payload.Messages {
		if _, dup := seen[message.ID]; dup {
			continue
		}
		seen[message.ID] = struct{}{}
		merged = append(merged, message)
	}
	for _, message := range conv.messages {
		if _, dup := seen[message.ID]; dup {
			continue
		}
		seen[message.ID] = struct{}{}
		merged = append(merged, message)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	conv.messages = merged
	conv.byID = make(map[string]int, len(merged))
	for i, message := range merged {
		conv.byID[message.ID] = i
	}
	if len(merged) > 0 {
		last := merged[len(merged)-1]
		conv.last = &last
	}

	// History arrives paired with the zeroed counter; trust it.
	conv.unread = payload.Unread
	r.active = payload.Key
}

// ApplyLive appends a server-pushed message unless its id is already
// present. Messages for a non-active conversation bump its unread count.
func (r *Reconciler) ApplyLive(message MessageResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.keyOf(message)
	conv := r.conversationLocked(key)

	if _, dup := conv.byID[message.ID]; dup {
		return
	}

	conv.byID[message.ID] = len(conv.messages)
	conv.messages = append(conv.messages, message)
	last := message
	conv.last = &last

	if key != r.active && message.SenderID != r.self {
		conv.unread++
	}
}

// ApplyUpdated replaces the entry with a matching id in place. The ordering
// position does not change.
func (r *Reconciler) ApplyUpdated(message MessageResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conv := range r.conversations {
		if i, ok := conv.byID[message.ID]; ok {
			conv.messages[i] = message
			if conv.last != nil && conv.last.ID == message.ID {
				last := message
				conv.last = &last
			}
			return
		}
	}
}

// ApplyDeleted removes the id from every conversation list it could belong
// to; the client does not always know which channel a message originated
// from.
func (r *Reconciler) ApplyDeleted(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conv := range r.conversations {
		i, ok := conv.byID[messageID]
		if !ok {
			continue
		}
		conv.messages = append(conv.messages[:i], conv.messages[i+1:]...)
		delete(conv.byID, messageID)
		for j := i; j < len(conv.messages); j++ {
			conv.byID[conv.messages[j].ID] = j
		}
		if conv.last != nil && conv.last.ID == messageID {
			if n := len(conv.messages); n > 0 {
				last := conv.messages[n-1]
				conv.last = &last
			} else {
				conv.last = nil
			}
		}
	}
}

// Messages returns a copy of the conversation's ordered message list.
func (r *Reconciler) Messages(key string) []MessageResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[key]
	if !ok {
		return nil
	}
	out := make([]MessageResponse, len(conv.messages))
	copy(out, conv.messages)
	return out
}

// Unread returns the unread count for one conversation.
func (r *Reconciler) Unread(key string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if conv, ok := r.conversations[key]; ok {
		return conv.unread
	}
	return 0
}

// Summaries returns one row per known conversation, sorted by most recent
// activity first.
func (r *Reconciler) Summaries() []ConversationSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConversationSummary, 0, len(r.conversations))
	for key, conv := range r.conversations {
		summary := ConversationSummary{Key: key, Unread: conv.unread}
		if conv.last != nil {
			last := *conv.last
			summary.LastMessage = &last
		}
		out = append(out, summary)
	}

	sort.SliceStable(out, func(i, j int) bool {
		switch {
		case out[i].LastMessage == nil:
			return false
		case out[j].LastMessage == nil:
			return true
		default:
			return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
		}
	})

	return out
}
