// Package conversation reconstructs review threads from flat comment records.
package conversation

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spiffcs/prlens/internal/model"
)

// Options configures thread reconstruction.
type Options struct {
	// Author is the PR author's login; their comments get RoleAuthor.
	Author string
	// Bots identifies automated accounts.
	Bots BotSet
	// AnchorWindow is the maximum gap between consecutive root comments on
	// the same file+line anchor for them to share a thread.
	AnchorWindow time.Duration
}

// BotSet identifies bot accounts by explicit login or the "[bot]" suffix.
type BotSet struct {
	names map[string]bool
}

// NewBotSet creates a BotSet from explicit logins (matched case-insensitively).
func NewBotSet(logins []string) BotSet {
	names := make(map[string]bool, len(logins))
	for _, l := range logins {
		names[strings.ToLower(strings.TrimSpace(l))] = true
	}
	return BotSet{names: names}
}

// IsBot reports whether the login belongs to an automated account.
func (b BotSet) IsBot(login string) bool {
	l := strings.ToLower(login)
	if strings.HasSuffix(l, "[bot]") {
		return true
	}
	return b.names[l]
}

// RoleOf infers the role of an actor relative to the PR author.
func RoleOf(actor, author string, bots BotSet) model.Role {
	switch {
	case bots.IsBot(actor):
		return model.RoleBot
	case actor != "" && strings.EqualFold(actor, author):
		return model.RoleAuthor
	default:
		return model.RoleReviewer
	}
}

// node is one comment during reconstruction.
type node struct {
	index     int
	comment   model.RawComment
	ts        time.Time
	hasTime   bool
	parent    int // index of parent node, -1 for roots
	threadKey int // index of the node that owns the thread
}

// Reconstruct groups comments into threads. Every comment ends up in
// exactly one thread.
func Reconstruct(comments []model.RawComment, events []model.TimelineEvent, opts Options) []model.ReviewThread {
	if len(comments) == 0 {
		return nil
	}

	eventTimes := commentEventTimes(events)
	nodes := make([]*node, len(comments))
	byID := make(map[string]int, len(comments))

	for i, c := range comments {
		n := &node{index: i, comment: c, parent: -1, threadKey: -1}
		if ts, ok := model.ParseTimestamp(c.Timestamp); ok {
			n.ts, n.hasTime = ts, true
		} else if ts, ok := eventTimes[c.ID]; ok && c.ID != "" {
			n.ts, n.hasTime = ts, true
		}
		nodes[i] = n
		if _, dup := byID[c.ID]; !dup && c.ID != "" {
			byID[c.ID] = i
		}
	}

	// Explicit reply links. A parent that does not exist leaves the comment
	// as a root of its own.
	brokenLink := make(map[int]bool)
	for _, n := range nodes {
		if n.comment.ParentID == "" {
			continue
		}
		p, ok := byID[n.comment.ParentID]
		if !ok || p == n.index {
			brokenLink[n.index] = true
			continue
		}
		n.parent = p
	}

	for _, n := range nodes {
		n.threadKey = resolveRoot(nodes, n.index)
	}

	groupAnchoredRoots(nodes, brokenLink, opts.AnchorWindow)

	// Roots may have been re-pointed to an earlier anchor thread; follow
	// through so replies land in the same thread as their root.
	members := make(map[int][]*node)
	for _, n := range nodes {
		key := nodes[n.threadKey].threadKey
		members[key] = append(members[key], n)
	}

	threads := make([]model.ReviewThread, 0, len(members))
	for key, ms := range members {
		threads = append(threads, buildThread(nodes[key], ms, opts))
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threadLess(threads[i], threads[j])
	})
	for i := range threads {
		threads[i].ID = ThreadID(i)
	}
	return threads
}

// ThreadID returns the identifier of the thread at position i.
func ThreadID(i int) string {
	return "T" + strconv.Itoa(i+1)
}

// resolveRoot follows parent links to the root. Cycles are broken at the
// starting comment.
func resolveRoot(nodes []*node, start int) int {
	visited := map[int]bool{start: true}
	cur := start
	for nodes[cur].parent >= 0 {
		next := nodes[cur].parent
		if visited[next] {
			return start
		}
		visited[next] = true
		cur = next
	}
	return cur
}

// groupAnchoredRoots merges parentless roots that share a file+line anchor
// and follow each other within the window.
func groupAnchoredRoots(nodes []*node, brokenLink map[int]bool, window time.Duration) {
	var roots []*node
	for _, n := range nodes {
		if n.threadKey != n.index || brokenLink[n.index] || n.comment.ParentID != "" {
			continue
		}
		if n.comment.Path == "" || !n.hasTime {
			continue
		}
		roots = append(roots, n)
	}

	sort.SliceStable(roots, func(i, j int) bool {
		if !roots[i].ts.Equal(roots[j].ts) {
			return roots[i].ts.Before(roots[j].ts)
		}
		return roots[i].index < roots[j].index
	})

	type anchorState struct {
		owner int
		last  time.Time
	}
	current := make(map[string]*anchorState)

	for _, r := range roots {
		key := anchorKey(r.comment)
		st, ok := current[key]
		if ok && window > 0 && r.ts.Sub(st.last) <= window {
			r.threadKey = st.owner
			st.last = r.ts
			continue
		}
		current[key] = &anchorState{owner: r.index, last: r.ts}
	}
}

func anchorKey(c model.RawComment) string {
	return c.Path + ":" + strconv.Itoa(c.Line)
}

func buildThread(root *node, members []*node, opts Options) model.ReviewThread {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.hasTime != b.hasTime {
			return a.hasTime
		}
		if a.hasTime && !a.ts.Equal(b.ts) {
			return a.ts.Before(b.ts)
		}
		return a.index < b.index
	})

	t := model.ReviewThread{
		FilePath:   root.comment.Path,
		AnchorLine: root.comment.Line,
		Exchanges:  make([]model.Exchange, 0, len(members)),
	}
	for _, m := range members {
		if !m.hasTime {
			t.MissingTimestamps = true
		}
		t.Exchanges = append(t.Exchanges, model.Exchange{
			CommentID: m.comment.ID,
			Actor:     m.comment.Actor,
			Timestamp: m.ts,
			Text:      m.comment.Body,
			Role:      RoleOf(m.comment.Actor, opts.Author, opts.Bots),
		})
	}

	t.Type = ClassifyType(t.Exchanges)
	t.Resolution = ClassifyResolution(t.Exchanges)
	t.Topic = Topic(t.Exchanges)
	return t
}

// threadLess orders threads by first exchange time (untimed last), then
// by the first comment id for stability.
func threadLess(a, b model.ReviewThread) bool {
	ta, tb := a.StartedAt(), b.StartedAt()
	if ta.IsZero() != tb.IsZero() {
		return !ta.IsZero()
	}
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return firstCommentID(a) < firstCommentID(b)
}

func firstCommentID(t model.ReviewThread) string {
	if len(t.Exchanges) == 0 {
		return ""
	}
	return t.Exchanges[0].CommentID
}

// commentEventTimes indexes timeline comment events by comment id so that
// comments missing a timestamp can borrow it.
func commentEventTimes(events []model.TimelineEvent) map[string]time.Time {
	out := make(map[string]time.Time)
	for _, ev := range events {
		p, ok := ev.Payload.(model.CommentPayload)
		if !ok || p.CommentID == "" {
			continue
		}
		if _, exists := out[p.CommentID]; !exists {
			out[p.CommentID] = ev.Timestamp
		}
	}
	return out
}
